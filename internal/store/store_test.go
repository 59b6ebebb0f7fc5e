package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleProgress() schemas.PlayerProgress {
	p := schemas.NewPlayerProgress(80, 1)
	p.UnlockedSkills = []string{"dosimetry_basics"}
	p.SpecializationProgress["dosimetry"] = 1
	return p
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTables)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes the stored document", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectProgress)).
			WithArgs("player-1").
			WillReturnRows(pgxmock.NewRows([]string{"progress"}).
				AddRow([]byte(`{"reputation":80,"skill_points_available":1,"unlocked_skills":["dosimetry_basics"],"specialization_progress":{"dosimetry":1}}`)))

		got, err := s.GetProgress(ctx, "player-1")
		require.NoError(t, err)
		assert.True(t, sampleProgress().Equal(got))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("maps missing rows to ErrNotFound", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectProgress)).
			WithArgs("nobody").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetProgress(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		boom := errors.New("connection reset")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectProgress)).
			WithArgs("player-1").
			WillReturnError(boom)

		_, err := s.GetProgress(ctx, "player-1")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestPutProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts, records history and commits", func(t *testing.T) {
		observedCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedCore))

		progress := sampleProgress()
		payload, err := schemas.JSON.Marshal(progress)
		require.NoError(t, err)

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlUpsertProgress)).
			WithArgs("player-1", payload, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"progress"}).AddRow(payload))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs("player-1", payload, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		saved, err := s.PutProgress(ctx, "player-1", progress)
		require.NoError(t, err)
		assert.True(t, progress.Equal(saved))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "no errors should be logged on a committed transaction")
	})

	t.Run("rolls back when the history insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		progress := sampleProgress()
		payload, err := schemas.JSON.Marshal(progress)
		require.NoError(t, err)

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlUpsertProgress)).
			WithArgs("player-1", payload, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"progress"}).AddRow(payload))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs("player-1", payload, pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		_, err = s.PutProgress(ctx, "player-1", progress)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record progress history")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("fails when the transaction cannot begin", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("too many connections"))

		_, err := s.PutProgress(ctx, "player-1", sampleProgress())
		assert.ErrorContains(t, err, "failed to begin transaction")
	})
}

func TestGetItem(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "name", "description", "effect_type", "effect_value"}

	t.Run("decodes numeric and boolean values", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectItem)).
			WithArgs("dosimeter").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("dosimeter", "Pocket Dosimeter", "Reads dose.", "insight_gain_flat", []byte("2.5")))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectItem)).
			WithArgs("notes").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("notes", "Lecture Notes", "", "recall_similar_questions", []byte("true")))

		item, err := s.GetItem(ctx, "dosimeter")
		require.NoError(t, err)
		assert.Equal(t, "Pocket Dosimeter", item.Name)
		assert.Equal(t, schemas.EffectInsightGainFlat, item.Effect.Type)
		assert.Equal(t, 2.5, item.Effect.Value.Float())

		notes, err := s.GetItem(ctx, "notes")
		require.NoError(t, err)
		assert.True(t, notes.Effect.Value.IsBool())
		assert.True(t, notes.Effect.Value.Truthy())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("maps missing rows to ErrNotFound", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectItem)).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetItem(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPutItems(t *testing.T) {
	ctx := context.Background()
	items := []schemas.Item{
		{ID: "dosimeter", Name: "Pocket Dosimeter", Effect: schemas.ItemEffect{Type: schemas.EffectInsightGainFlat, Value: schemas.Number(2)}},
		{ID: "notes", Name: "Lecture Notes", Effect: schemas.ItemEffect{Type: schemas.EffectRecallSimilarQuestions, Value: schemas.Bool(true)}},
	}

	t.Run("queues one upsert per item", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertItem)).
			WithArgs("dosimeter", "Pocket Dosimeter", "", "insight_gain_flat", []byte("2")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertItem)).
			WithArgs("notes", "Lecture Notes", "", "recall_similar_questions", []byte("true")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PutItems(ctx, items))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		require.NoError(t, s.PutItems(ctx, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
