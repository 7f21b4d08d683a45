package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"dvsmart-go/internal/dvs"
)

const timeLayout = "2006-01-02 15:04:05"

func printJobList(w io.Writer, jobs []*dvs.JobExecutionRecord) {
	for _, j := range jobs {
		fmt.Fprintf(w, "#%d  %-12s  %s  %-9s  %8s  %s\n",
			j.JobExecutionID,
			j.JobName,
			j.StartTime.Format(timeLayout),
			j.Status,
			j.DurationHuman,
			j.AuditID,
		)
	}
}

func printJob(w io.Writer, j *dvs.JobExecutionRecord) {
	fmt.Fprintf(w, "Job #%d %s (%s)\n", j.JobExecutionID, j.JobName, j.AuditID)
	fmt.Fprintf(w, "Status:    %s\n", j.Status)
	fmt.Fprintf(w, "Started:   %s\n", j.StartTime.Format(timeLayout))
	if j.EndTime != nil {
		fmt.Fprintf(w, "Finished:  %s (%s, %.2f files/s)\n", j.EndTime.Format(timeLayout), j.DurationHuman, j.FilesPerSecond)
	}
	if j.ErrorDetail != "" {
		fmt.Fprintf(w, "Error:     %s\n", j.ErrorDetail)
	}

	c := j.Counters
	fmt.Fprintf(w, "Files:     discovered=%d indexed=%d indexingFailed=%d processed=%d skipped=%d failed=%d deleted=%d deletionFailed=%d recovered=%d requeued=%d\n",
		c.Discovered, c.Indexed, c.IndexingFailed, c.Processed, c.Skipped, c.Failed, c.Deleted, c.DeletionFailed, c.Recovered, c.Requeued)

	if len(j.Steps) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tREAD\tWRITE\tSKIP\tDURATION")
	for _, s := range j.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%dms\n", s.Name, s.Status, s.ReadCount, s.WriteCount, s.SkipCount, s.DurationMs)
	}
	tw.Flush()
}

func printFile(w io.Writer, r *dvs.FileRecord) {
	fmt.Fprintf(w, "ID:          %s\n", r.ID)
	fmt.Fprintf(w, "Source:      %s\n", r.SourceFile())
	fmt.Fprintf(w, "Size:        %d\n", r.FileSize)
	fmt.Fprintf(w, "Modified:    %s\n", r.LastModifiedAt.Format(timeLayout))
	fmt.Fprintf(w, "Discovered:  %s (job #%d)\n", r.DiscoveredAt.Format(timeLayout), r.DiscoveredByJob)
	fmt.Fprintf(w, "Indexing:    %s", r.IndexingStatus)
	if r.IndexingError != "" {
		fmt.Fprintf(w, " (%s)", r.IndexingError)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Reorg:       %s, %d attempt(s)", r.ReorgStatus, r.ReorgAttempts)
	if r.ReorgError != "" {
		fmt.Fprintf(w, " (%s)", r.ReorgError)
	}
	fmt.Fprintln(w)
	if r.DestinationPath != "" {
		fmt.Fprintf(w, "Destination: %s\n", r.DestinationPath)
	}
	if r.DeletedFromSource {
		fmt.Fprintf(w, "Deleted:     %s by %s\n", r.SourceDeletionAt.Format(timeLayout), r.DeletedBy)
	}
	if r.DocumentType != "" {
		fmt.Fprintf(w, "Metadata:    %s %s %04d-%02d\n", r.DocumentType, r.ClientCode, r.Year, r.Month)
	}
}

func printStats(w io.Writer, counts map[dvs.ReorgStatus]int64) {
	statuses := make([]dvs.ReorgStatus, 0, len(counts))
	var total int64
	for s, n := range counts {
		statuses = append(statuses, s)
		total += n
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].String() < statuses[j].String() })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%d\n", s, counts[s])
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", total)
	tw.Flush()
}
