package service

import (
	"context"

	"github.com/avoronova/FinSync/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShareableKind names the three entity kinds that can be mirrored into
// a public collection.
type ShareableKind string

const (
	KindCategory       ShareableKind = "category"
	KindPerson         ShareableKind = "person"
	KindBudgetTemplate ShareableKind = "budgetTemplate"
)

// PrivateCollection is where the owner's records of this kind live.
func (k ShareableKind) PrivateCollection() string {
	switch k {
	case KindPerson:
		return models.CollectionPeople
	case KindBudgetTemplate:
		return models.CollectionBudgetTemplates
	default:
		return models.CollectionCategories
	}
}

// PublicCollection is the flat mirror collection for this kind.
func (k ShareableKind) PublicCollection() string {
	switch k {
	case KindPerson:
		return models.CollectionPublicPeople
	case KindBudgetTemplate:
		return models.CollectionPublicBudgetTmpls
	default:
		return models.CollectionPublicCategories
	}
}

// MirrorService keeps one public mirror document per currently-public
// private record. Every failure on the mirror side is logged and
// swallowed: the private write is the record of truth for the owner, and
// public visibility is a best-effort broadcast.
type MirrorService struct {
	docs  DocumentStore
	log   *zap.Logger
	newID func() string
}

// NewMirrorService constructs a MirrorService over the given store.
func NewMirrorService(docs DocumentStore, log *zap.Logger) *MirrorService {
	return &MirrorService{
		docs:  docs,
		log:   log,
		newID: uuid.NewString,
	}
}

// Sync aligns the mirror with the private record's post-write state:
// public with no mirror creates one, public with a mirror updates it in
// place, private with a mirror deletes it, private without one is a
// no-op. fields is the private record's current payload.
func (s *MirrorService) Sync(ctx context.Context, owner Owner, kind ShareableKind, originID string, fields map[string]any) {
	vis, _ := fields[models.FieldVisibility].(string)
	mirror, err := s.docs.FindByField(ctx, kind.PublicCollection(), models.FieldOriginRecordID, originID)
	if err != nil {
		s.log.Warn("mirror lookup failed", zap.String("origin", originID), zap.Error(err))
		return
	}

	switch {
	case vis == string(models.VisibilityPublic) && mirror == nil:
		data := shareableFields(fields)
		data[models.FieldOriginRecordID] = originID
		data[models.FieldOriginOwnerID] = owner.ID
		data[models.FieldOriginOwnerName] = owner.Name
		data[models.FieldUsageCount] = 0
		if _, err := s.docs.Create(ctx, models.Document{
			Collection: kind.PublicCollection(),
			ID:         s.newID(),
			OwnerID:    owner.ID,
			Data:       data,
		}); err != nil {
			s.log.Warn("mirror create failed", zap.String("origin", originID), zap.Error(err))
		}
	case vis == string(models.VisibilityPublic):
		if err := s.docs.Update(ctx, kind.PublicCollection(), mirror.ID, shareableFields(fields), nil); err != nil {
			s.log.Warn("mirror update failed", zap.String("origin", originID), zap.Error(err))
		}
	case mirror != nil:
		if err := s.docs.Delete(ctx, kind.PublicCollection(), mirror.ID); err != nil {
			s.log.Warn("mirror delete failed", zap.String("origin", originID), zap.Error(err))
		}
	}
}

// Drop removes the mirror of a deleted private record, if one exists.
func (s *MirrorService) Drop(ctx context.Context, kind ShareableKind, originID string) {
	mirror, err := s.docs.FindByField(ctx, kind.PublicCollection(), models.FieldOriginRecordID, originID)
	if err != nil {
		s.log.Warn("mirror lookup failed", zap.String("origin", originID), zap.Error(err))
		return
	}
	if mirror == nil {
		return
	}
	if err := s.docs.Delete(ctx, kind.PublicCollection(), mirror.ID); err != nil {
		s.log.Warn("mirror delete failed", zap.String("origin", originID), zap.Error(err))
	}
}

// shareableFields copies the entity's own fields, leaving mirror
// bookkeeping (origin ids, usage counter) out so an update can never
// clobber the mirror's counter.
func shareableFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case models.FieldOriginRecordID, models.FieldOriginOwnerID,
			models.FieldOriginOwnerName, models.FieldUsageCount:
			continue
		}
		out[k] = v
	}
	return out
}
