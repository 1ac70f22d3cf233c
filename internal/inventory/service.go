package inventory

import (
	"context"

	"github.com/sirupsen/logrus"
)

// EventPublisher announces committed inventory changes to other services.
type EventPublisher interface {
	PublishProductCreated(ctx context.Context, p Product) error
	PublishStockAdded(ctx context.Context, handle string, rec StockRecord) error
}

// Service orchestrates inventory writes on top of the Repository and emits a
// domain event once a write has committed. Event delivery is best-effort: the
// stored row is the source of truth, so a failed publish is only logged.
type Service struct {
	repo   Repository
	pub    EventPublisher
	logger logrus.FieldLogger
}

// NewService builds a Service. pub may be nil when events are disabled.
func NewService(repo Repository, pub EventPublisher, logger logrus.FieldLogger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger}
}

func (s *Service) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}

	if s.pub != nil {
		if err := s.pub.PublishProductCreated(ctx, created); err != nil {
			s.logger.WithError(err).WithField("handle", created.Handle).Warn("publish product created")
		}
	}
	return created, nil
}

func (s *Service) GetProduct(ctx context.Context, handle string) (Product, error) {
	return s.repo.GetProduct(ctx, handle)
}

func (s *Service) AddStock(ctx context.Context, handle string, entry StockEntry) (StockRecord, error) {
	rec, err := s.repo.AddStock(ctx, handle, entry)
	if err != nil {
		return StockRecord{}, err
	}

	if s.pub != nil {
		if err := s.pub.PublishStockAdded(ctx, handle, rec); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"handle":   handle,
				"location": rec.Location,
			}).Warn("publish stock added")
		}
	}
	return rec, nil
}

func (s *Service) ListInventory(ctx context.Context) ([]ProductInventory, error) {
	return s.repo.ListInventory(ctx)
}
