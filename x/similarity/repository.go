// Package similarity ranks stored questions against a query using a
// weighted combination of text overlap, metadata match, vote mass and
// recency, and returns results a page at a time behind a signed
// opaque cursor.
package similarity

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("similarity")

// Candidate is the subset of a question's fields the scorer needs; it
// intentionally excludes People/HansardLinks in raw form, carrying
// instead the normalized reference strings metadataScore compares
// against a query's own normalized references.
type Candidate struct {
	QuestionID   string
	Text         string
	CreatedAt    time.Time
	LastModified time.Time
	TotalVotes   int64
	NetVotes     int64
	AskRefs      []string
	AnswerRefs   []string
}

// normalizeRef renders exactly one populated PersonForQuestion field
// into a single string comparable across ask and answer targets and
// across the query side and the candidate side. uidOf resolves a
// User row's numeric id to its UID; it's nil-safe because a row can
// reference a user that was deleted after the fact.
func normalizeRef(p core.PersonForQuestion, uidOf map[uint]string) string {
	switch {
	case p.User != nil:
		return "user:" + strings.ToLower(uidOf[*p.User])
	case p.MP != nil:
		return "mp:" + strings.ToLower(*p.MP)
	case p.Organisation != nil:
		return "organisation:" + strings.ToLower(*p.Organisation)
	case p.Committee != nil:
		return "committee:" + strings.ToLower(*p.Committee)
	case p.Minister != nil:
		return "minister:" + strings.ToLower(*p.Minister)
	default:
		return ""
	}
}

// NormalizeQueryRef renders a wire PersonRef the same way normalizeRef
// renders a stored PersonForQuestion row, so the two sides of a Jaccard
// comparison speak the same alphabet. Exported for the service to use
// on the query side of Search.
func NormalizeQueryRef(ref *core.PersonRef) string {
	if ref == nil {
		return ""
	}
	switch {
	case ref.User != nil:
		return "user:" + strings.ToLower(core.NormalizeUID(*ref.User))
	case ref.MP != nil:
		return "mp:" + strings.ToLower(*ref.MP)
	case ref.Organisation != nil:
		return "organisation:" + strings.ToLower(*ref.Organisation)
	case ref.Committee != nil:
		return "committee:" + strings.ToLower(*ref.Committee)
	case ref.Minister != nil:
		return "minister:" + strings.ToLower(*ref.Minister)
	default:
		return ""
	}
}

type Repository interface {
	// Candidates returns every non-censored question, ordered by ID so
	// repeated calls against the same snapshot produce a stable offset.
	Candidates(ctx context.Context) ([]Candidate, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Candidates(ctx context.Context) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "Similarity.Repository.Candidates")
	defer span.End()

	var rows []struct {
		ID         string
		Text       string
		CDate      time.Time
		MDate      time.Time
		TotalVotes int64
		NetVotes   int64
	}
	err := r.db.WithContext(ctx).Model(&core.Question{}).
		Select("id, text, c_date, m_date, total_votes, net_votes").
		Where("censorship_status NOT IN ?", []core.CensorshipStatus{core.StatusCensored}).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	candidates := make([]Candidate, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		candidates = append(candidates, Candidate{
			QuestionID:   row.ID,
			Text:         row.Text,
			CreatedAt:    row.CDate,
			LastModified: row.MDate,
			TotalVotes:   row.TotalVotes,
			NetVotes:     row.NetVotes,
		})
		index[row.ID] = i
	}

	var people []core.PersonForQuestion
	if err := r.db.WithContext(ctx).Find(&people).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}

	userIDs := make(map[uint]bool)
	for _, p := range people {
		if p.User != nil {
			userIDs[*p.User] = true
		}
	}
	uidOf := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		ids := make([]uint, 0, len(userIDs))
		for id := range userIDs {
			ids = append(ids, id)
		}
		var users []core.User
		if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, u := range users {
			uidOf[u.ID] = u.UIDUpper
		}
	}

	for _, p := range people {
		i, ok := index[p.QuestionID]
		if !ok {
			continue
		}
		ref := normalizeRef(p, uidOf)
		if ref == "" {
			continue
		}
		switch p.Role {
		case core.RoleAsk:
			candidates[i].AskRefs = append(candidates[i].AskRefs, ref)
		case core.RoleAnswer:
			candidates[i].AnswerRefs = append(candidates[i].AnswerRefs, ref)
		}
	}

	return candidates, nil
}
