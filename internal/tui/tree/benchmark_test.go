package tree

import (
	"fmt"
	"testing"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func BenchmarkBuildRows_AllExpanded(b *testing.B) {
	channels := benchmarkChannels(5000)
	expanded := make(map[string]bool, 40)
	for i := 0; i < 40; i++ {
		expanded[fmt.Sprintf("Group %02d", i)] = true
	}
	opts := BuildOptions{Expanded: expanded, Less: ByName}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = BuildRows(channels, opts)
	}
}

func BenchmarkBuildRows_Search(b *testing.B) {
	channels := benchmarkChannels(5000)
	opts := BuildOptions{Filter: MatchSearch("channel 1"), FlattenFilter: true}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = BuildRows(channels, opts)
	}
}

func benchmarkChannels(n int) []tvapi.Channel {
	out := make([]tvapi.Channel, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tvapi.Channel{
			ID:    fmt.Sprintf("ch-%05d", i),
			Name:  fmt.Sprintf("Channel %04d", i),
			Group: fmt.Sprintf("Group %02d", i%40),
		})
	}
	return out
}
