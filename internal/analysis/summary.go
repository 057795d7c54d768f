// Package analysis summarises runs and measures how hard tasks are.
package analysis

import (
	"fmt"
	"io"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"

	"github.com/umich-dbgroup/litmus/internal/results"
)

// MaxBucket is the largest iteration count with its own bucket.
const MaxBucket = 5

// Spread describes a sample. All fields are zero for an empty sample.
type Spread struct {
	Min, Q1, Median, Q3, Max float64
	Mean, StdDev             float64
}

type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	// AtMost[k] counts succeeded tasks that needed at most k iterations.
	AtMost [MaxBucket + 1]int
	// Beyond counts succeeded tasks that needed more than MaxBucket.
	Beyond int

	CQs        Spread
	Iterations Spread

	MeanQueryTime   time.Duration
	MeanCompTime    time.Duration
	MeanTotalTime   time.Duration
	MaxTotalTime    time.Duration
	MeanTimePerIter time.Duration
	MaxTimePerIter  time.Duration
}

// Summarize aggregates task records. Only succeeded tasks contribute to the
// iteration and time figures.
func Summarize(recs []results.Record) Summary {
	s := Summary{Total: len(recs)}
	var cqs, iters, query, comp, total, perIter stats.Float64Data

	for _, r := range recs {
		cqs = append(cqs, float64(r.TotalCQ))
		if !r.Succeeded() {
			s.Failed++
			continue
		}
		s.Succeeded++
		n := *r.Iterations
		for k := n; k <= MaxBucket; k++ {
			if k >= 0 {
				s.AtMost[k]++
			}
		}
		if n > MaxBucket {
			s.Beyond++
		}
		iters = append(iters, float64(n))

		q, c := r.Totals.QueryTime.Seconds(), r.Totals.CompTime.Seconds()
		query = append(query, q)
		comp = append(comp, c)
		total = append(total, q+c)
		if n > 0 {
			perIter = append(perIter, (q+c)/float64(n))
		}
	}

	s.CQs = spread(cqs)
	s.Iterations = spread(iters)
	s.MeanQueryTime = seconds(mean(query))
	s.MeanCompTime = seconds(mean(comp))
	s.MeanTotalTime = seconds(mean(total))
	s.MaxTotalTime = seconds(maximum(total))
	s.MeanTimePerIter = seconds(mean(perIter))
	s.MaxTimePerIter = seconds(maximum(perIter))
	return s
}

func spread(d stats.Float64Data) Spread {
	if d.Len() == 0 {
		return Spread{}
	}
	var s Spread
	s.Min, _ = d.Min()
	s.Max, _ = d.Max()
	s.Median, _ = d.Median()
	s.Mean, _ = d.Mean()
	s.StdDev, _ = d.StandardDeviation()
	s.Q1, _ = d.Percentile(25)
	s.Q3, _ = d.Percentile(75)
	return s
}

func mean(d stats.Float64Data) float64 {
	if d.Len() == 0 {
		return 0
	}
	m, _ := d.Mean()
	return m
}

func maximum(d stats.Float64Data) float64 {
	if d.Len() == 0 {
		return 0
	}
	m, _ := d.Max()
	return m
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Render prints the summary as task, iteration and time tables.
func Render(w io.Writer, s Summary) {
	table := newTable(w, "TASK INFO")
	table.Append([]string{"Total Results", fmt.Sprint(s.Total)})
	table.Append([]string{"Succeeded Results", fmt.Sprint(s.Succeeded)})
	table.Append([]string{"Min Total CQ #", fmt.Sprintf("%.3f", s.CQs.Min)})
	table.Append([]string{"Mean Total CQ #", fmt.Sprintf("%.3f", s.CQs.Mean)})
	table.Append([]string{"Max Total CQ #", fmt.Sprintf("%.3f", s.CQs.Max)})
	table.Render()

	table = newTable(w, "ITER INFO")
	for k, n := range s.AtMost {
		table.Append([]string{fmt.Sprintf("# Tasks <= %d Iter (%%)", k), share(n, s.Total)})
	}
	table.Append([]string{fmt.Sprintf("# Tasks >= %d Iter (%%)", MaxBucket+1), share(s.Beyond, s.Total)})
	table.Append([]string{"# Failed Tasks (%)", share(s.Failed, s.Total)})
	table.Append([]string{"Min # Iters", fmt.Sprintf("%.3f", s.Iterations.Min)})
	table.Append([]string{"First Quartile # Iters", fmt.Sprintf("%.3f", s.Iterations.Q1)})
	table.Append([]string{"Median # Iters", fmt.Sprintf("%.3f", s.Iterations.Median)})
	table.Append([]string{"Third Quartile # Iters", fmt.Sprintf("%.3f", s.Iterations.Q3)})
	table.Append([]string{"Max # Iters", fmt.Sprintf("%.3f", s.Iterations.Max)})
	table.Append([]string{"Std. Dev. # Iters", fmt.Sprintf("%.3f", s.Iterations.StdDev)})
	table.Append([]string{"Mean # Iters", fmt.Sprintf("%.3f", s.Iterations.Mean)})
	table.Render()

	table = newTable(w, "TIME INFO")
	table.Append([]string{"Mean Query Time", secondsString(s.MeanQueryTime)})
	table.Append([]string{"Mean Computation Time", secondsString(s.MeanCompTime)})
	table.Append([]string{"Mean Total Time", secondsString(s.MeanTotalTime)})
	table.Append([]string{"Max Total Time", secondsString(s.MaxTotalTime)})
	table.Append([]string{"Mean Total Time/Iter", secondsString(s.MeanTimePerIter)})
	table.Append([]string{"Max Total Time/Iter", secondsString(s.MaxTimePerIter)})
	table.Render()
}

func newTable(w io.Writer, title string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{title, "VALUE"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	return table
}

func share(n, total int) string {
	if total == 0 {
		return fmt.Sprintf("%d (0.00%%)", n)
	}
	return fmt.Sprintf("%d (%.2f%%)", n, float64(n)/float64(total)*100)
}

func secondsString(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
