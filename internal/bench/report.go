// Copyright 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bench

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

func opsPerSec(n int, d time.Duration) string {
	if n == 0 || d <= 0 {
		return "-"
	}
	return humanize.Comma(int64(float64(n)/d.Seconds())) + "/s"
}

// Table renders the result as a text table.
func (r *Result) Table() string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(fmt.Sprintf("ostree-bench: %s", r.Tree))
	tbl.AppendHeader(table.Row{"Phase", "Operations", "Elapsed", "Rate"})
	tbl.AppendRows([]table.Row{
		{"insert", humanize.Comma(int64(r.Inserted + r.Replaced)), r.InsertTime.Round(time.Microsecond), opsPerSec(r.Inserted+r.Replaced, r.InsertTime)},
		{"query", humanize.Comma(int64(r.Queries)), r.QueryTime.Round(time.Microsecond), opsPerSec(r.Queries, r.QueryTime)},
		{"delete", humanize.Comma(int64(r.Deleted)), r.DeleteTime.Round(time.Microsecond), opsPerSec(r.Deleted, r.DeleteTime)},
	})
	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"keys", humanize.Comma(int64(r.Stats.Len))},
		{"height", r.Stats.Height},
		{"replaced", humanize.Comma(int64(r.Replaced))},
		{"rotations", humanize.Comma(int64(r.Stats.Rotations))},
		{"color flips", humanize.Comma(int64(r.Stats.ColorFlips))},
		{"arena slots", humanize.Comma(int64(r.Stats.Slots))},
	})
	checked := "skipped"
	if r.Checked {
		checked = "ok"
	}
	tbl.AppendFooter(table.Row{"invariants", checked})
	return tbl.Render()
}
