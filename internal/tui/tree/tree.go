package tree

import (
	"sort"
	"strings"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

type RowKind string

const (
	RowGroup   RowKind = "group"
	RowChannel RowKind = "channel"
)

// GroupNode is a group header. Count is the number of members the header
// stands for, whether or not they are currently listed.
type GroupNode struct {
	Name     string
	Count    int
	Expanded bool
}

// Row is either a group header or a channel. Channel rows carry the index of
// the channel in the slice passed to BuildRows and the name of their group.
type Row struct {
	Kind         RowKind
	Group        GroupNode
	ChannelIndex int
}

type BuildOptions struct {
	// Groups lists groups known ahead of their members, with server counts.
	// Their order wins over first observation in the channel slice.
	Groups   []tvapi.Group
	Expanded map[string]bool
	// Filter selects channels. A nil Filter means no filter is active.
	Filter func(tvapi.Channel) bool
	// FlattenFilter drops group headers while a filter is active.
	FlattenFilter bool
	// Less optionally orders members inside a group; ties keep source order.
	Less    func(a, b tvapi.Channel) bool
	GroupOf func(tvapi.Channel) string
}

type group struct {
	name    string
	count   int
	members []int
}

func GroupName(ch tvapi.Channel) string {
	return ch.GroupName()
}

// MatchSearch is the predicate for a search query: a case-insensitive
// substring match on the channel name. An empty query yields nil.
func MatchSearch(query string) func(tvapi.Channel) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	return func(ch tvapi.Channel) bool {
		return strings.Contains(strings.ToLower(ch.Name), q)
	}
}

// ByName orders channels case-insensitively by display name.
func ByName(a, b tvapi.Channel) bool {
	return strings.ToLower(strings.TrimSpace(a.Name)) < strings.ToLower(strings.TrimSpace(b.Name))
}

func BuildRows(channels []tvapi.Channel, opts BuildOptions) []Row {
	groupOf := opts.GroupOf
	if groupOf == nil {
		groupOf = GroupName
	}

	if opts.Filter != nil && opts.FlattenFilter {
		indices := make([]int, 0, len(channels))
		for i, ch := range channels {
			if opts.Filter(ch) {
				indices = append(indices, i)
			}
		}
		sortMembers(channels, indices, opts.Less)
		rows := make([]Row, 0, len(indices))
		for _, idx := range indices {
			rows = append(rows, Row{
				Kind:         RowChannel,
				Group:        GroupNode{Name: groupOf(channels[idx])},
				ChannelIndex: idx,
			})
		}
		return rows
	}

	groups := buildGroups(channels, opts, groupOf)
	rows := make([]Row, 0, len(channels)+len(groups))
	for _, g := range groups {
		if opts.Filter != nil && len(g.members) == 0 {
			continue
		}
		expanded := opts.Expanded[g.name]
		header := GroupNode{Name: g.name, Count: g.count, Expanded: expanded}
		rows = append(rows, Row{Kind: RowGroup, Group: header})
		if !expanded {
			continue
		}
		sortMembers(channels, g.members, opts.Less)
		for _, idx := range g.members {
			rows = append(rows, Row{
				Kind:         RowChannel,
				Group:        header,
				ChannelIndex: idx,
			})
		}
	}
	return rows
}

func buildGroups(channels []tvapi.Channel, opts BuildOptions, groupOf func(tvapi.Channel) string) []group {
	groups := make([]group, 0, len(opts.Groups)+8)
	index := make(map[string]int, len(opts.Groups))
	serverCount := make(map[string]bool, len(opts.Groups))
	for _, g := range opts.Groups {
		if _, ok := index[g.Name]; ok {
			continue
		}
		groups = append(groups, group{name: g.Name, count: g.Count})
		index[g.Name] = len(groups) - 1
		serverCount[g.Name] = true
	}

	for i, ch := range channels {
		name := groupOf(ch)
		gi, ok := index[name]
		if !ok {
			groups = append(groups, group{name: name})
			gi = len(groups) - 1
			index[name] = gi
		}
		if opts.Filter != nil && !opts.Filter(ch) {
			continue
		}
		groups[gi].members = append(groups[gi].members, i)
	}

	for i := range groups {
		if opts.Filter != nil || !serverCount[groups[i].name] {
			groups[i].count = len(groups[i].members)
		}
	}
	return groups
}

func sortMembers(channels []tvapi.Channel, indices []int, less func(a, b tvapi.Channel) bool) {
	if less == nil {
		return
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return less(channels[indices[i]], channels[indices[j]])
	})
}

// FirstChannelRow returns the first channel row, or 0 when there is none.
func FirstChannelRow(rows []Row) int {
	for i, row := range rows {
		if row.Kind == RowChannel {
			return i
		}
	}
	return 0
}

// HeaderIndex returns the header row that owns row i, or -1 for flat lists.
func HeaderIndex(rows []Row, i int) int {
	if i < 0 || i >= len(rows) {
		return -1
	}
	for ; i >= 0; i-- {
		if rows[i].Kind == RowGroup {
			return i
		}
	}
	return -1
}

// GroupRow returns the header row of the named group, or -1.
func GroupRow(rows []Row, name string) int {
	for i, row := range rows {
		if row.Kind == RowGroup && row.Group.Name == name {
			return i
		}
	}
	return -1
}

// ChannelRow returns the row showing the channel with the given id, or -1.
func ChannelRow(rows []Row, channels []tvapi.Channel, id string) int {
	for i, row := range rows {
		if row.Kind != RowChannel || row.ChannelIndex < 0 || row.ChannelIndex >= len(channels) {
			continue
		}
		if channels[row.ChannelIndex].ID == id {
			return i
		}
	}
	return -1
}
