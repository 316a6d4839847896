package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

func TestParseRecordRoundTrip(t *testing.T) {
	raw := "jobId: job-abc123\nstatus: pending\npriority: 95\n\nDo the thing.\nSecond line."

	rec, err := ParseRecord(raw)
	require.NoError(t, err)

	assert.Equal(t, "job-abc123", rec.Get("jobId"))
	assert.Equal(t, "pending", rec.Get("status"))
	assert.Equal(t, 95, rec.GetInt("priority", 0))
	assert.Equal(t, "Do the thing.\nSecond line.", rec.Body)

	reparsed, err := ParseRecord(rec.Encode())
	require.NoError(t, err)
	assert.Equal(t, rec.Header, reparsed.Header)
	assert.Equal(t, rec.Body, reparsed.Body)
}

func TestParseRecordCorruptHeader(t *testing.T) {
	cases := []string{
		"this line has no colon\n\nbody",
		": empty key\n\nbody",
		"",
		"\n\njust a body",
	}
	for _, raw := range cases {
		_, err := ParseRecord(raw)
		require.Error(t, err, "input %q", raw)
		assert.True(t, errors.IsCorruptRecordError(err))
	}
}

func TestRecordEncodeCanonicalOrder(t *testing.T) {
	rec := &Record{Header: map[string]string{
		"zebra":  "extra",
		"status": "pending",
		"jobId":  "job-1",
		"apple":  "extra",
	}, Body: "body"}

	encoded := rec.Encode()
	lines := strings.Split(encoded, "\n")

	assert.Equal(t, "jobId: job-1", lines[0])
	assert.Equal(t, "status: pending", lines[1])
	// extras sorted after reserved keys
	assert.Equal(t, "apple: extra", lines[2])
	assert.Equal(t, "zebra: extra", lines[3])
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "body", lines[5])
}

func TestRecordListEncoding(t *testing.T) {
	rec := &Record{Header: map[string]string{}}
	rec.SetList("dependsOn", []string{"task-a", "task-b"})
	assert.Equal(t, []string{"task-a", "task-b"}, rec.GetList("dependsOn"))

	rec.Set("dependsOn", " task-a , task-b ,")
	assert.Equal(t, []string{"task-a", "task-b"}, rec.GetList("dependsOn"))

	rec.Set("dependsOn", "")
	assert.Nil(t, rec.GetList("dependsOn"))
}

func TestRecordBumpVersion(t *testing.T) {
	rec := &Record{Header: map[string]string{}}
	assert.Equal(t, 1, rec.BumpVersion())
	assert.Equal(t, 2, rec.BumpVersion())
	assert.Equal(t, 2, rec.GetInt("version", 0))
}
