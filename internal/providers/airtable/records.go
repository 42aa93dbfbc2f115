package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskvoice/internal/domain"
)

const doneStatus = "Done"

// Fields names the table columns. Schema drift is handled here rather than
// by guessing at read time.
type Fields struct {
	JobID        string
	JobStatus    string
	ResponseText string
	Usage        string
	RefreshEpoch string
	Created      string
}

func (f Fields) withDefaults() Fields {
	if f.JobID == "" {
		f.JobID = "Job ID"
	}
	if f.JobStatus == "" {
		f.JobStatus = "Job Status"
	}
	if f.ResponseText == "" {
		f.ResponseText = "Response Text"
	}
	if f.Usage == "" {
		f.Usage = "TASKLET_USAGE_PERCENTAGE"
	}
	if f.RefreshEpoch == "" {
		f.RefreshEpoch = "TASKLET_REFRESH_EPOCH"
	}
	if f.Created == "" {
		f.Created = "Created"
	}
	return f
}

// UsageRecord is one telemetry row. Nil pointers mean the column was empty.
type UsageRecord struct {
	ID           string
	CreatedTime  time.Time
	Percentage   *float64
	RefreshEpoch *int64
}

// JobStatus looks up the row written for jobID.
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	query := url.Values{}
	query.Set("filterByFormula", fmt.Sprintf("{%s}='%s'", c.fields.JobID, escapeFormula(jobID)))
	query.Set("maxRecords", "1")

	records, err := c.list(ctx, c.jobsURL, query)
	if err != nil {
		return domain.JobStatus{}, err
	}

	status := domain.JobStatus{JobID: jobID}
	if len(records) == 0 {
		return status, nil
	}

	rec := records[0]
	if stringField(rec, c.fields.JobStatus) != doneStatus {
		status.State = domain.JobStateWorking
		return status, nil
	}

	status.State = domain.JobStateDone
	status.ResponseText = strings.TrimSpace(stringField(rec, c.fields.ResponseText))
	if status.ResponseText == "" {
		status.ResponseText = doneStatus
	}
	return status, nil
}

// UsageRecords returns up to limit telemetry rows, newest first.
func (c *Client) UsageRecords(ctx context.Context, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	query.Set("sort[0][field]", c.fields.Created)
	query.Set("sort[0][direction]", "desc")
	query.Set("maxRecords", strconv.Itoa(limit))

	records, err := c.list(ctx, c.usageURL, query)
	if err != nil {
		return nil, err
	}

	out := make([]UsageRecord, 0, len(records))
	for _, rec := range records {
		row := UsageRecord{ID: rec.ID, CreatedTime: rec.CreatedTime}
		if pct, ok := numberField(rec, c.fields.Usage); ok {
			row.Percentage = &pct
		}
		if epoch, ok := numberField(rec, c.fields.RefreshEpoch); ok && epoch > 0 {
			sec := int64(epoch)
			row.RefreshEpoch = &sec
		}
		out = append(out, row)
	}
	return out, nil
}

func escapeFormula(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}

func stringField(rec record, name string) string {
	raw, ok := rec.Fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// numberField reads a numeric column. Formula columns sometimes come back
// as strings, so those are parsed too.
func numberField(rec record, name string) (float64, bool) {
	raw, ok := rec.Fields[name]
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
