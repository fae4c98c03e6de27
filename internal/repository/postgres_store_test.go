package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqlRecorder collects every statement gorm renders.
type sqlRecorder struct {
	statements []string
}

func (r *sqlRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }

func (r *sqlRecorder) Info(context.Context, string, ...interface{}) {}

func (r *sqlRecorder) Warn(context.Context, string, ...interface{}) {}

func (r *sqlRecorder) Error(context.Context, string, ...interface{}) {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	if strings.TrimSpace(sql) != "" {
		r.statements = append(r.statements, sql)
	}
}

func dryRunTx(t *testing.T, readOnly bool) (*postgresTx, *sqlRecorder) {
	t.Helper()
	recorder := &sqlRecorder{}
	db, err := gorm.Open(postgres.Open("host=localhost user=escrow dbname=escrow sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               recorder,
	})
	require.NoError(t, err)
	return &postgresTx{db: db, readOnly: readOnly}, recorder
}

func readEverything(ctx context.Context, tx *postgresTx) {
	_, _ = tx.GetEscrow(ctx, 1)
	_, _ = tx.GetMilestone(ctx, 1, 0)
	_, _ = tx.EscrowedAmount(ctx, "native")
	_, _ = tx.AccruedFees(ctx, "native")
	_, _ = tx.Balance(ctx, "GCLIENT", "native")
	_, _ = tx.Reputation(ctx, "GFREELANCER")
	_, _ = tx.AverageRating(ctx, "GFREELANCER")
}

func TestPostgresViewReadsWithoutLocksOrWrites(t *testing.T) {
	tx, recorder := dryRunTx(t, true)
	readEverything(context.Background(), tx)

	require.Len(t, recorder.statements, 7)
	for _, statement := range recorder.statements {
		assert.NotContains(t, statement, "FOR UPDATE")
		assert.NotContains(t, statement, "INSERT")
	}
}

func TestPostgresTxLocksRowsItReads(t *testing.T) {
	tx, recorder := dryRunTx(t, false)
	readEverything(context.Background(), tx)

	var locked, inserts int
	for _, statement := range recorder.statements {
		if strings.Contains(statement, "FOR UPDATE") {
			locked++
		}
		if strings.Contains(statement, "INSERT") {
			inserts++
		}
	}
	assert.Equal(t, 7, locked)
	// Custody, balance and reputation rows are created before they are locked.
	assert.Equal(t, 5, inserts)
}
