package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order header together with its lines.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withDetail(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersForUser pages by (created_at, id) descending, starting after cursor.
func (r *repository) ListOrdersForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.withDetail(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var orders []models.Order
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) withDetail(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Events", func(q *gorm.DB) *gorm.DB { return q.Order("id ASC") })
}

func (r *repository) ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&lines).Error
	return lines, err
}

// LatestEvent returns the event with the highest id, which is the current status.
func (r *repository) LatestEvent(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusEvent, error) {
	var event models.OrderStatusEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id DESC").
		Limit(1).
		Take(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListStale returns orders whose current status is status and has been since
// before cutoff, oldest first.
func (r *repository) ListStale(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	latest := r.db.Model(&models.OrderStatusEvent{}).
		Select("MAX(id)").
		Group("order_id")

	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.OrderStatusEvent{}).
		Where("id IN (?)", latest).
		Where("status = ? AND created_at < ?", status, cutoff).
		Order("id ASC").
		Limit(limit).
		Pluck("order_id", &ids).Error
	return ids, err
}

func (r *repository) CreatePaymentRecord(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
