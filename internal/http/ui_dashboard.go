package httpx

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	"github.com/m-navaneeth8770/queuectl/internal/service"
)

const dashboardRowLimit = 20

// DashboardRow represents a job row on the overview page.
type DashboardRow struct {
	ID        string
	Command   string
	State     model.JobState
	Priority  int
	Attempts  int
	CreatedAt time.Time
	LastError *string
}

// CommandSummary returns a display-width bounded command string.
func (r DashboardRow) CommandSummary() string {
	return truncateWithEllipsis(r.Command, 60)
}

// FailureSummary returns a short version of the last error.
func (r DashboardRow) FailureSummary() string {
	if r.LastError == nil {
		return ""
	}
	return truncateWithEllipsis(strings.TrimSpace(*r.LastError), 90)
}

func truncateWithEllipsis(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "…"
}

type dashboardView struct {
	Snapshot       *service.DashboardSnapshot
	Pending        []DashboardRow
	RecentFailures []DashboardRow
	Dead           []DashboardRow
}

// DashboardHandlers serves the read-only HTML overview page.
type DashboardHandlers struct {
	Svc       *service.QueueService
	Snapshots *service.StatsCache
	Template  *template.Template
}

func (h *DashboardHandlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := h.Snapshots.Snapshot(ctx)
	if err != nil {
		http.Error(w, "unable to load queue stats", http.StatusInternalServerError)
		return
	}

	view := dashboardView{Snapshot: snapshot}
	if pending, err := h.Svc.List(ctx, model.JobFilter{State: model.JobStatePending, Limit: dashboardRowLimit}); err == nil {
		view.Pending = dashboardRows(pending)
	}
	if failed, err := h.Svc.List(ctx, model.JobFilter{State: model.JobStateFailed, Limit: dashboardRowLimit}); err == nil {
		view.RecentFailures = dashboardRows(failed)
	}
	if dead, err := h.Svc.ListDLQ(ctx, dashboardRowLimit); err == nil {
		view.Dead = dashboardRows(dead)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.Template.Execute(w, view); err != nil {
		// Headers are already out; nothing useful left to write.
		return
	}
}

func dashboardRows(jobs []*model.Job) []DashboardRow {
	rows := make([]DashboardRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, DashboardRow{
			ID:        job.ID,
			Command:   job.Command,
			State:     job.State,
			Priority:  job.Priority,
			Attempts:  job.Attempts,
			CreatedAt: job.CreatedAt,
			LastError: job.Error,
		})
	}
	return rows
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>queuectl dashboard</title>
<meta http-equiv="refresh" content="10">
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0.25rem; }
.muted { color: #777; font-size: 0.85rem; }
.cards { display: flex; gap: 1rem; margin: 1rem 0 2rem; flex-wrap: wrap; }
.card { border: 1px solid #ddd; border-radius: 6px; padding: 0.75rem 1.25rem; min-width: 7rem; }
.card .value { font-size: 1.6rem; font-weight: 600; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #eee; font-size: 0.9rem; }
th { color: #555; }
code { background: #f5f5f5; padding: 0.1rem 0.3rem; border-radius: 3px; }
.state-dead { color: #b00020; }
.state-failed { color: #c77700; }
</style>
</head>
<body>
<h1>queuectl</h1>
<p class="muted">snapshot taken {{.Snapshot.TakenAt.Format "15:04:05 MST"}}</p>

<div class="cards">
  <div class="card"><div class="value">{{.Snapshot.Stats.Pending}}</div>pending</div>
  <div class="card"><div class="value">{{.Snapshot.Stats.Processing}}</div>processing</div>
  <div class="card"><div class="value">{{.Snapshot.Stats.Completed}}</div>completed</div>
  <div class="card"><div class="value">{{.Snapshot.Stats.Failed}}</div>failed</div>
  <div class="card"><div class="value">{{.Snapshot.Stats.Dead}}</div>dead</div>
</div>

<div class="cards">
  <div class="card"><div class="value">{{.Snapshot.Metrics.CompletedTotal}}</div>completed total</div>
  <div class="card"><div class="value">{{.Snapshot.Metrics.FailedTotal}}</div>failed total</div>
  <div class="card"><div class="value">{{.Snapshot.Metrics.DeadTotal}}</div>dead total</div>
</div>

<h2>Pending jobs</h2>
{{if .Pending}}
<table>
<tr><th>ID</th><th>Command</th><th>Priority</th><th>Attempts</th></tr>
{{range .Pending}}
<tr><td><code>{{.ID}}</code></td><td>{{.CommandSummary}}</td><td>{{.Priority}}</td><td>{{.Attempts}}</td></tr>
{{end}}
</table>
{{else}}<p class="muted">No pending jobs.</p>{{end}}

<h2>Recent failures</h2>
{{if .RecentFailures}}
<table>
<tr><th>ID</th><th>Command</th><th>Attempts</th><th>Error</th></tr>
{{range .RecentFailures}}
<tr><td><code>{{.ID}}</code></td><td>{{.CommandSummary}}</td><td>{{.Attempts}}</td><td class="state-failed">{{.FailureSummary}}</td></tr>
{{end}}
</table>
{{else}}<p class="muted">No failed jobs.</p>{{end}}

<h2>Dead letter queue</h2>
{{if .Dead}}
<table>
<tr><th>ID</th><th>Command</th><th>Attempts</th><th>Error</th></tr>
{{range .Dead}}
<tr><td><code>{{.ID}}</code></td><td>{{.CommandSummary}}</td><td>{{.Attempts}}</td><td class="state-dead">{{.FailureSummary}}</td></tr>
{{end}}
</table>
{{else}}<p class="muted">DLQ is empty.</p>{{end}}

</body>
</html>
`))
