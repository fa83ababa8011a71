package store

import (
	"database/sql"
	"time"

	"tucomercio/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

var fixedTime = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func errNoRowsForTest() error { return sql.ErrNoRows }

func businessFixture() *models.Business {
	return &models.Business{
		ID:        "b1",
		OwnerID:   "u1",
		Name:      "La Esquina",
		Slug:      "la-esquina",
		Category:  "restaurantes",
		Status:    models.BusinessPending,
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

func reviewRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "business_id", "user_id", "user_name", "rating", "comment",
		"reply", "replied_at", "hidden", "created_at", "updated_at"})
}

func chatRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "type", "business_id", "opened_by", "last_message",
		"last_sender_id", "last_message_at", "created_at"})
}
