package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashKey(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	k := hashKey("rs2d", "lab/exp1", at, "zg30")

	assert.Equal(t, k, hashKey("rs2d", "lab/exp1", at.In(time.FixedZone("CET", 3600)), "zg30"))
	assert.NotEqual(t, k, hashKey("rs2d", "lab/exp2", at, "zg30"))
	assert.NotEqual(t, k, hashKey("rs2d", "lab/exp1", at.Add(time.Second), "zg30"))
	assert.NotEqual(t, k, hashKey("bruker", "lab/exp1", at, "zg30"))
	assert.NotEqual(t, k, hashKey("rs2d", "lab/exp1", at, "cosy"))
	assert.Len(t, k, 36)
}

func TestSummary_SelectProcessedData(t *testing.T) {
	s := &Summary{Path: "lab/exp1"}
	assert.Equal(t, "exp1", s.Name())
	assert.Equal(t, "", s.SelectedProcessedData())
	assert.False(t, s.SelectProcessedData(0))

	s.Processed = []string{"Proc/2", "Proc/0"}
	assert.Equal(t, "Proc/2", s.SelectedProcessedData())
	assert.True(t, s.SelectProcessedData(1))
	assert.Equal(t, "Proc/0", s.SelectedProcessedData())
	assert.False(t, s.SelectProcessedData(2))
	assert.False(t, s.SelectProcessedData(-1))
	assert.Equal(t, "Proc/0", s.SelectedProcessedData())
}

func TestSummary_ExportDropsRuntimeState(t *testing.T) {
	s := &Summary{
		Path:      "lab/exp1",
		Time:      time.Date(2024, 3, 1, 10, 15, 0, 0, time.FixedZone("CET", 3600)),
		NDim:      2,
		NVectors:  128,
		Present:   true,
		Processed: []string{"Proc/0"},
	}
	e := s.Export()
	assert.Equal(t, "2024-03-01T09:15:00Z", e.Time)
	assert.Equal(t, int32(2), e.NDim)

	back := FromExport(e)
	assert.True(t, back.Time.Equal(s.Time))
	assert.Equal(t, 128, back.NVectors)
	assert.False(t, back.Present)
	assert.Nil(t, back.Processed)

	assert.True(t, FromExport(SummaryExport{Time: "yesterday"}).Time.IsZero())
	assert.Equal(t, "", (&Summary{}).Export().Time)
}
