package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetUserByExternalID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepository(mock)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		rows := pgxmock.NewRows([]string{"id", "external_id", "email", "name", "payment_customer_id", "order_ids", "created_at"}).
			AddRow(int64(7), "user_abc", "a@example.com", "Asha", "cus_123", []int64{1, 2}, now)

		mock.ExpectQuery(`SELECT id, external_id, email, name`).
			WithArgs("user_abc").
			WillReturnRows(rows)

		user, err := repo.GetUserByExternalID(ctx, "user_abc")
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
		assert.Equal(t, "cus_123", user.PaymentCustomerID)
		assert.Equal(t, []int64{1, 2}, user.OrderIDs)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, external_id, email, name`).
			WithArgs("nobody").
			WillReturnError(pgx.ErrNoRows)

		user, err := repo.GetUserByExternalID(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		assert.Nil(t, user)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, external_id, email, name`).
			WithArgs("user_abc").
			WillReturnError(errors.New("connection refused"))

		user, err := repo.GetUserByExternalID(ctx, "user_abc")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrUserNotFound)
		assert.Nil(t, user)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_AppendOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepository(mock)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET order_ids = array_append`).
			WithArgs(int64(7), int64(42)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.AppendOrder(ctx, 7, 42))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET order_ids = array_append`).
			WithArgs(int64(8), int64(42)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, repo.AppendOrder(ctx, 8, 42), domain.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_SetPaymentCustomerID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepository(mock)

	// Уже сохраненный идентификатор не перезаписывается, и это не ошибка
	mock.ExpectExec(`UPDATE users SET payment_customer_id = \$2 WHERE id = \$1 AND payment_customer_id IS NULL`).
		WithArgs(int64(7), "cus_123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.SetPaymentCustomerID(context.Background(), 7, "cus_123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ClearCart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectExec(`DELETE FROM cart_items`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, repo.ClearCart(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_GetUserAddress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepository(mock)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "user_id", "full_name", "line1", "city", "state", "postal_code", "phone"}).
			AddRow(int64(3), int64(7), "Asha Rao", "12 MG Road", "Bengaluru", "KA", "560001", "+9100000000")

		mock.ExpectQuery(`SELECT id, user_id, full_name`).
			WithArgs(int64(3), int64(7)).
			WillReturnRows(rows)

		addr, err := repo.GetUserAddress(ctx, 3, 7)
		require.NoError(t, err)
		assert.Equal(t, "Bengaluru", addr.City)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Address of another user", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, user_id, full_name`).
			WithArgs(int64(3), int64(8)).
			WillReturnError(pgx.ErrNoRows)

		addr, err := repo.GetUserAddress(ctx, 3, 8)
		assert.ErrorIs(t, err, domain.ErrAddressNotFound)
		assert.Nil(t, addr)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
