package store

import (
	"context"
	"testing"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertReview_InsertUpdatesAggregate(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(8, 2))
	mock.ExpectQuery("SELECT (.+) FROM reviews").
		WithArgs("b1", "u2").
		WillReturnRows(reviewRows())
	mock.ExpectExec("INSERT INTO reviews").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE businesses SET rating_sum").
		WithArgs("b1", 13, 3, 4.33).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	change, err := s.UpsertReview(context.Background(), models.Review{
		ID: "r-new", BusinessID: "b1", UserID: "u2", Rating: 5, CreatedAt: fixedTime, UpdatedAt: fixedTime,
	})
	require.NoError(t, err)
	assert.True(t, change.Created)
	assert.Equal(t, models.Rating{Avg: 4.33, Count: 3}, change.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReview_EditReplacesOldRating(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses").
		WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(6, 2))
	mock.ExpectQuery("SELECT (.+) FROM reviews").
		WithArgs("b1", "u2").
		WillReturnRows(reviewRows().AddRow("r1", "b1", "u2", "Ana", 2, "meh", "gracias", nil, false, fixedTime, fixedTime))
	mock.ExpectExec("UPDATE reviews SET rating").
		WithArgs("r1", 4, "mejoró", "Ana", fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE businesses SET rating_sum").
		WithArgs("b1", 8, 2, 4.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	change, err := s.UpsertReview(context.Background(), models.Review{
		ID: "ignored", BusinessID: "b1", UserID: "u2", UserName: "Ana", Rating: 4, Comment: "mejoró", UpdatedAt: fixedTime,
	})
	require.NoError(t, err)
	assert.False(t, change.Created)
	assert.Equal(t, "r1", change.Review.ID)
	assert.Equal(t, "gracias", change.Review.Reply)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReview_UnknownBusiness(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses").
		WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}))
	mock.ExpectRollback()

	_, err := s.UpsertReview(context.Background(), models.Review{BusinessID: "missing", UserID: "u2", Rating: 3})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReview_HiddenReviewLeavesAggregate(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT business_id FROM reviews").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"business_id"}).AddRow("b1"))
	mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(9, 2))
	mock.ExpectQuery("SELECT (.+) FROM reviews WHERE id (.+) FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(reviewRows().AddRow("r1", "b1", "u2", "Ana", 1, "", "", nil, true, fixedTime, fixedTime))
	mock.ExpectExec("DELETE FROM reviews").WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE businesses SET rating_sum").
		WithArgs("b1", 9, 2, 4.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	change, err := s.DeleteReview(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.Rating{Avg: 4.5, Count: 2}, change.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReviewHidden_RemovesFromAggregate(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT business_id FROM reviews").
		WillReturnRows(sqlmock.NewRows([]string{"business_id"}).AddRow("b1"))
	mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses").
		WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(6, 2))
	mock.ExpectQuery("SELECT (.+) FROM reviews WHERE id (.+) FOR UPDATE").
		WillReturnRows(reviewRows().AddRow("r1", "b1", "u2", "Ana", 1, "spam", "", nil, false, fixedTime, fixedTime))
	mock.ExpectExec("UPDATE reviews SET hidden").WithArgs("r1", true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE businesses SET rating_sum").
		WithArgs("b1", 5, 1, 5.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	change, err := s.SetReviewHidden(context.Background(), "r1", true)
	require.NoError(t, err)
	assert.True(t, change.Review.Hidden)
	assert.Equal(t, 1, change.Rating.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Review writes lock the business row before the review row, the same order UpsertReview uses.
func TestReviewWrites_LockBusinessBeforeReview(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Store) error
		tail func(mock sqlmock.Sqlmock)
	}{
		{
			name: "delete",
			run: func(s *Store) error {
				_, err := s.DeleteReview(context.Background(), "r1")
				return err
			},
			tail: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM reviews").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("UPDATE businesses SET rating_sum").
					WithArgs("b1", 4, 1, 4.0).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "hide",
			run: func(s *Store) error {
				_, err := s.SetReviewHidden(context.Background(), "r1", true)
				return err
			},
			tail: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE reviews SET hidden").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("UPDATE businesses SET rating_sum").
					WithArgs("b1", 4, 1, 4.0).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.MatchExpectationsInOrder(true)
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT business_id FROM reviews WHERE id = \$1$`).
				WithArgs("r1").
				WillReturnRows(sqlmock.NewRows([]string{"business_id"}).AddRow("b1"))
			mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses (.+) FOR UPDATE").
				WithArgs("b1").
				WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(6, 2))
			mock.ExpectQuery("SELECT (.+) FROM reviews WHERE id (.+) FOR UPDATE").
				WithArgs("r1").
				WillReturnRows(reviewRows().AddRow("r1", "b1", "u2", "Ana", 2, "", "", nil, false, fixedTime, fixedTime))
			tt.tail(mock)
			mock.ExpectCommit()

			require.NoError(t, tt.run(s))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteReview_UnknownReview(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT business_id FROM reviews").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"business_id"}))
	mock.ExpectRollback()

	_, err := s.DeleteReview(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewAggregate_SequenceStaysExact(t *testing.T) {
	s, mock := newTestStore(t)
	sum, count := 5, 3 // ratings 1, 2, 2
	for _, want := range []struct {
		sum, count int
		avg        float64
	}{{3, 2, 1.5}, {1, 1, 1.0}} {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT business_id FROM reviews").
			WillReturnRows(sqlmock.NewRows([]string{"business_id"}).AddRow("b1"))
		mock.ExpectQuery("SELECT rating_sum, rating_count FROM businesses").
			WillReturnRows(sqlmock.NewRows([]string{"rating_sum", "rating_count"}).AddRow(sum, count))
		mock.ExpectQuery("SELECT (.+) FROM reviews WHERE id (.+) FOR UPDATE").
			WillReturnRows(reviewRows().AddRow("r2", "b1", "u2", "Ana", 2, "", "", nil, false, fixedTime, fixedTime))
		mock.ExpectExec("DELETE FROM reviews").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE businesses SET rating_sum").
			WithArgs("b1", want.sum, want.count, want.avg).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		change, err := s.DeleteReview(context.Background(), "r2")
		require.NoError(t, err)
		assert.Equal(t, models.Rating{Avg: want.avg, Count: want.count}, change.Rating)
		sum, count = want.sum, want.count
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
