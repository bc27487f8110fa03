package store

import (
	"sort"
	"strings"

	"github.com/raysh454/netmon/internal/model"
)

type SortKey string

const (
	SortWaterfall   SortKey = "waterfall"
	SortStatus      SortKey = "status"
	SortMethod      SortKey = "method"
	SortFile        SortKey = "file"
	SortDomain      SortKey = "domain"
	SortType        SortKey = "type"
	SortTransferred SortKey = "transferred"
	SortSize        SortKey = "size"
	SortDuration    SortKey = "duration"
	SortSecurity    SortKey = "security"
)

var sortKeys = map[SortKey]func(a, b *model.Request) int{
	SortWaterfall: func(a, b *model.Request) int { return a.StartedAt.Compare(b.StartedAt) },
	SortStatus:    func(a, b *model.Request) int { return a.StatusCode() - b.StatusCode() },
	SortMethod:    func(a, b *model.Request) int { return strings.Compare(a.Method, b.Method) },
	SortFile: func(a, b *model.Request) int {
		return strings.Compare(strings.ToLower(a.FileName()), strings.ToLower(b.FileName()))
	},
	SortDomain: func(a, b *model.Request) int { return strings.Compare(a.Domain, b.Domain) },
	SortType:   func(a, b *model.Request) int { return strings.Compare(string(a.Cause), string(b.Cause)) },
	SortTransferred: func(a, b *model.Request) int {
		return cmpInt64(a.TransferredSize, b.TransferredSize)
	},
	SortSize:     func(a, b *model.Request) int { return cmpInt64(a.ContentSize, b.ContentSize) },
	SortDuration: func(a, b *model.Request) int { return cmpInt64(int64(a.TotalTime), int64(b.TotalTime)) },
	SortSecurity: func(a, b *model.Request) int {
		return strings.Compare(string(a.SecurityState), string(b.SecurityState))
	},
}

// ParseSortKey maps a column name to its SortKey.
func ParseSortKey(s string) (SortKey, bool) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	return k, validSortKey(k)
}

func validSortKey(k SortKey) bool {
	_, ok := sortKeys[k]
	return ok
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// sortRequests orders reqs in place. Ties always fall back to arrival
// sequence, ascending, so equal rows never swap between renders.
func sortRequests(reqs []*model.Request, s Sort) {
	cmp, ok := sortKeys[s.Key]
	if !ok {
		cmp = sortKeys[SortWaterfall]
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		c := cmp(reqs[i], reqs[j])
		if s.Descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return reqs[i].Seq < reqs[j].Seq
	})
}
