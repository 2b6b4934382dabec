package arena

import (
	"fmt"
	"strings"
)

func (a *Arena) String() string {
	if a == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Arena | Limit: 0x%x, Malloced: 0x%x, Reserved: 0x%x, PageSize: 0x%x, Prealloc: %v, Pages: %d\n",
		a.limit, a.malloced, a.reserved, a.pageSize, a.Prealloc(), a.PageCount())
	if a.Prealloc() {
		fmt.Fprintf(&b, "   base: 0x%x / 0x%x carved\n", a.cursor, len(a.base))
	}

	for i := range a.pages {
		p := &a.pages[i]
		var d string
		if p.State == PageMarked {
			d = ">"
		} else {
			d = "|"
		}
		fmt.Fprintf(&b, "   %s [%04d] Owner: %3d | State: %-10s | Gen: %d | Used: %d\n",
			d, i, p.Owner, p.State, p.Gen, p.Used)
	}

	return b.String()
}
