package similarity

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/x/searchcache"
)

const defaultPageSize = 20

type service struct {
	repo   Repository
	cache  *searchcache.Cache
	vocab  *Vocabulary
	secret []byte
}

func NewService(repo Repository, cache *searchcache.Cache, vocab *Vocabulary, hmacSecret []byte) core.SimilarityService {
	return &service{repo: repo, cache: cache, vocab: vocab, secret: hmacSecret}
}

// Search ranks every non-censored question against the query and
// returns one page. The first request for a query fingerprint scores
// the whole candidate set once and caches it under a snapshot id;
// later pages for the same fingerprint reuse that ranking rather than
// re-running the scorer, exactly as spec.md's cache-eviction rule
// assumes.
func (s *service) Search(ctx context.Context, cmd core.SimilarQuestionsCommand) (core.PageResult, error) {
	ctx, span := tracer.Start(ctx, "Similarity.Service.Search")
	defer span.End()

	requesterUID, _ := ctx.Value(core.RequesterUIDCtxKey).(string)

	pageSize := cmd.Page.To - cmd.Page.From
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var snapshotID string
	var offset int

	if cmd.Page.Token != nil {
		snap, err := openToken(s.secret, *cmd.Page.Token)
		if err != nil {
			return core.PageResult{}, err
		}
		snapshotID = snap.SnapshotID
		offset = snap.Offset
	} else {
		fingerprint := cmd
		fingerprint.Page = core.PageRequest{}
		snapshotID = searchcache.Key(requesterUID, fingerprint)
		offset = 0
	}

	ranked, ok := s.cache.Get(snapshotID)
	if !ok {
		candidates, err := s.repo.Candidates(ctx)
		if err != nil {
			span.RecordError(err)
			return core.PageResult{}, core.NewErrorInternal(err)
		}
		ranked = core.PageResult{Questions: s.rank(cmd, candidates)}
		s.cache.Put(snapshotID, ranked)
	}

	if offset > len(ranked.Questions) {
		offset = len(ranked.Questions)
	}
	end := offset + pageSize
	if end > len(ranked.Questions) {
		end = len(ranked.Questions)
	}
	page := ranked.Questions[offset:end]

	result := core.PageResult{Questions: page}
	if end < len(ranked.Questions) {
		result.Token = signToken(s.secret, snapshot{
			SnapshotID: snapshotID,
			Offset:     end,
			ExpiresAt:  time.Now().Add(snapshotTTL),
		})
	}
	return result, nil
}

// rank scores and sorts candidates highest-first. Ties break first on
// last-modified date (most recently touched wins) and finally on
// question id, so pagination across identical scores stays stable.
func (s *service) rank(cmd core.SimilarQuestionsCommand, candidates []Candidate) []core.ScoredQuestion {
	w := cmd.Weights
	queryRefs := queryRefSet(cmd)

	type ranked struct {
		QuestionID   string
		Score        float64
		LastModified time.Time
	}
	rankedRows := make([]ranked, 0, len(candidates))

	for _, c := range candidates {
		text := s.vocab.textScore(cmd.QuestionText, c.Text)
		meta := metadataScore(queryRefs, c)
		votes := signedLog1p(c.TotalVotes)
		net := signedLog1p(c.NetVotes)
		recency := recencyScore(c.LastModified, w.RecentnessTimescale)

		score := w.Text*text + w.Metadata*meta + w.TotalVotes*votes + w.NetVotes*net + w.Recentness*recency

		rankedRows = append(rankedRows, ranked{QuestionID: c.QuestionID, Score: score, LastModified: c.LastModified})
	}

	sort.SliceStable(rankedRows, func(i, j int) bool {
		if rankedRows[i].Score != rankedRows[j].Score {
			return rankedRows[i].Score > rankedRows[j].Score
		}
		if !rankedRows[i].LastModified.Equal(rankedRows[j].LastModified) {
			return rankedRows[i].LastModified.After(rankedRows[j].LastModified)
		}
		return rankedRows[i].QuestionID < rankedRows[j].QuestionID
	})

	scored := make([]core.ScoredQuestion, len(rankedRows))
	for i, r := range rankedRows {
		scored[i] = core.ScoredQuestion{QuestionID: r.QuestionID, Score: r.Score}
	}
	return scored
}

// queryRefSet normalizes the query's own ask/answer targets into the
// same alphabet a candidate's AskRefs/AnswerRefs use.
func queryRefSet(cmd core.SimilarQuestionsCommand) map[string]bool {
	set := make(map[string]bool, 2)
	if cmd.MPWhoShouldAsk != nil {
		set["mp:"+strings.ToLower(*cmd.MPWhoShouldAsk)] = true
	}
	if ref := NormalizeQueryRef(cmd.EntityWhoShouldAnswer); ref != "" {
		set[ref] = true
	}
	return set
}

// metadataScore is the Jaccard index between the query's normalized
// reference set and the candidate's combined ask+answer reference set:
// |intersection| / |union|, 0 when both sides are empty.
func metadataScore(queryRefs map[string]bool, c Candidate) float64 {
	candidateRefs := make(map[string]bool, len(c.AskRefs)+len(c.AnswerRefs))
	for _, r := range c.AskRefs {
		candidateRefs[r] = true
	}
	for _, r := range c.AnswerRefs {
		candidateRefs[r] = true
	}

	if len(queryRefs) == 0 && len(candidateRefs) == 0 {
		return 0
	}

	union := make(map[string]bool, len(queryRefs)+len(candidateRefs))
	intersection := 0
	for r := range queryRefs {
		union[r] = true
		if candidateRefs[r] {
			intersection++
		}
	}
	for r := range candidateRefs {
		union[r] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

// recencyScore decays exponentially with age; timescaleSeconds <= 0
// disables the term entirely so a caller who doesn't set it doesn't
// get a divide-by-zero.
func recencyScore(createdAt time.Time, timescaleSeconds float64) float64 {
	if timescaleSeconds <= 0 {
		return 0
	}
	age := time.Since(createdAt).Seconds()
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / timescaleSeconds)
}
