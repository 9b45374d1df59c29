package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdoptionService copies a public mirror into the acting user's private
// collection as a new, independently-owned record.
type AdoptionService struct {
	docs  DocumentStore
	log   *zap.Logger
	newID func() string
	now   func() time.Time
}

// NewAdoptionService constructs an AdoptionService over the given store.
func NewAdoptionService(docs DocumentStore, log *zap.Logger) *AdoptionService {
	return &AdoptionService{
		docs:  docs,
		log:   log,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Adopt copies the shareable fields of a mirror into a new private
// record owned by the adopter, tagged with a human-readable provenance
// string. The origin mirror's usage counter is bumped best-effort; the
// counter and the copy are independent operations and neither rolls the
// other back. Adopting the same mirror twice creates two independent
// copies.
func (s *AdoptionService) Adopt(ctx context.Context, adopter Owner, kind ShareableKind, mirrorID string) (string, error) {
	if adopter.ID == "" {
		return "", ErrUnauthenticated
	}
	mirror, err := s.docs.Get(ctx, kind.PublicCollection(), mirrorID)
	if err != nil {
		return "", asNotFound(err)
	}

	if err := s.docs.Increment(ctx, kind.PublicCollection(), mirrorID, models.FieldUsageCount, 1); err != nil {
		s.log.Warn("usage counter increment failed",
			zap.String("mirror", mirrorID), zap.Error(err))
	}

	originName, _ := mirror.Data[models.FieldOriginOwnerName].(string)
	fields := shareableFields(mirror.Data)
	fields["provenance"] = fmt.Sprintf("Adopted from %s", originName)
	fields[models.FieldVisibility] = string(models.VisibilityPrivate)
	fields["createdAt"] = s.now().UTC().Format(time.RFC3339Nano)

	id := s.newID()
	if _, err := s.docs.Create(ctx, models.Document{
		Collection: kind.PrivateCollection(),
		ID:         id,
		OwnerID:    adopter.ID,
		Data:       fields,
	}); err != nil {
		return "", fmt.Errorf("adopt %s: %w", kind, err)
	}
	return id, nil
}
