package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/pryde-social/governance/models"
	"github.com/pryde-social/governance/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderAppends(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := cliutil.SetupDatabase("sqlite://:memory:", 40)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditLogEntry{}))

	rec := NewRecorder(NewDBSink(db), nil)
	rec.RecordAction(ctx, Entry{
		ActorID:          7,
		Action:           "escalation_grant",
		TargetType:       "account",
		TargetID:         "7",
		Details:          map[string]any{"method": "totp"},
		EscalationMethod: "totp",
		IPAddress:        "10.0.0.1",
		UserAgent:        "steward-test",
	})

	var row models.AuditLogEntry
	require.NoError(t, db.First(&row).Error)
	assert.Equal("escalation_grant", row.Action)
	assert.Equal(uint(7), row.ActorID)
	assert.Contains(row.Details, "totp")
	assert.False(row.CreatedAt.IsZero())
}

type brokenSink struct{}

func (brokenSink) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	return fmt.Errorf("disk full")
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	rec := NewRecorder(brokenSink{}, nil)
	// must not panic or propagate
	rec.RecordAction(context.Background(), Entry{Action: "governance_strike", TargetID: "1"})
}

func TestRecorderUnserializableDetails(t *testing.T) {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 40)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditLogEntry{}))

	rec := NewRecorder(NewDBSink(db), nil)
	rec.RecordAction(context.Background(), Entry{
		Action:   "governance_strike",
		TargetID: "1",
		Details:  make(chan int),
	})

	// the row still lands, with empty details
	var row models.AuditLogEntry
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "", row.Details)
}
