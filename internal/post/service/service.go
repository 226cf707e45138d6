package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post"
	"github.com/postboard/postboard/backend/go-services/internal/post/reconcile"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/internal/post/repository"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/postboard/postboard/backend/go-services/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound   = errors.New("post not found")
	ErrForbidden  = errors.New("not the owner of this post")
	ErrInvalidID  = errors.New("invalid post id")
	ErrValidation = errors.New("validation failed")
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// mutationTimeout bounds the delete-then-write step of Update and Delete,
	// which runs detached from the request so a dropped client cannot stop it halfway.
	mutationTimeout = 45 * time.Second
)

// CreateInput is the client payload of a new post. References are taken at
// face value; they are not checked against storage.
type CreateInput struct {
	Title    string
	Content  string
	FileURL  refs.Field
	ImageURL refs.Field
}

// UpdateInput carries only the fields the client sent.
type UpdateInput struct {
	Title    *string
	Content  *string
	FileURL  refs.Field
	ImageURL refs.Field
}

// AdminQuery pages through all posts for the admin dashboard.
type AdminQuery struct {
	Page  int
	Size  int
	Owner string
	Q     string
}

// Page is one page of an admin listing.
type Page struct {
	Items []*post.Post `json:"items"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Total int64        `json:"total"`
}

// Service implements the post lifecycle: CRUD over the repository plus
// reconciliation of storage objects a mutation stops referencing.
type Service struct {
	repo    repository.Repository
	counter repository.Counter
	rec     *reconcile.Reconciler
	norm    *refs.Normalizer
}

func New(repo repository.Repository, counter repository.Counter, rec *reconcile.Reconciler, norm *refs.Normalizer) *Service {
	return &Service{repo: repo, counter: counter, rec: rec, norm: norm}
}

// Normalizer exposes the key/URL mapping used by this service.
func (s *Service) Normalizer() *refs.Normalizer { return s.norm }

func validID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return ErrInvalidID
	}
	return nil
}

// ingressKeys folds the legacy single-image field into the list and reduces
// every reference to a key, so only the list representation is persisted.
func (s *Service) ingressKeys(files refs.List, legacy string) refs.List {
	return refs.List(s.norm.ExtractKeys(files, legacy))
}

// present rehydrates stored keys into URLs for clients.
func (s *Service) present(p *post.Post) *post.Post {
	out := p.Clone()
	keys := refs.Coerce(p.FileRefs)
	if len(keys) == 0 && p.LegacyImage != "" {
		keys = []string{p.LegacyImage}
	}
	out.FileRefs = refs.List(s.norm.ToURLs(keys))
	return out
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), mutationTimeout)
}

func (s *Service) presentAll(in []*post.Post) []*post.Post {
	out := make([]*post.Post, 0, len(in))
	for _, p := range in {
		out = append(out, s.present(p))
	}
	return out
}

func (s *Service) Create(ctx context.Context, owner string, in CreateInput) (*post.Post, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrValidation)
	}
	number, err := s.counter.Next(ctx, owner)
	if err != nil {
		metrics.PostMutations.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("next post number: %w", err)
	}
	p := &post.Post{
		Owner:    owner,
		Number:   number,
		Title:    in.Title,
		Content:  in.Content,
		FileRefs: s.ingressKeys(in.FileURL.Values, in.ImageURL.First()),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		metrics.PostMutations.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("create post: %w", err)
	}
	metrics.PostMutations.WithLabelValues("create", "ok").Inc()
	logger.Infof("post created id=%s user=%s number=%d files=%d", p.ID.Hex(), owner, number, len(p.FileRefs))
	return s.present(p), nil
}

func (s *Service) List(ctx context.Context) ([]*post.Post, error) {
	list, err := s.repo.List(ctx, post.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return s.presentAll(list), nil
}

func (s *Service) ListMine(ctx context.Context, owner string) ([]*post.Post, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrValidation)
	}
	list, err := s.repo.List(ctx, post.Filter{Owner: owner})
	if err != nil {
		return nil, fmt.Errorf("list posts of %s: %w", owner, err)
	}
	return s.presentAll(list), nil
}

func (s *Service) Get(ctx context.Context, id string) (*post.Post, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(p), nil
}

func (s *Service) load(ctx context.Context, id string) (*post.Post, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load post %s: %w", id, err)
	}
	return p, nil
}

// loadOwned loads a post and checks that actor owns it.
func (s *Service) loadOwned(ctx context.Context, actor, id string) (*post.Post, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == "" || p.Owner != actor {
		return nil, ErrForbidden
	}
	return p, nil
}

// Update applies the supplied fields. When a reference field is supplied the
// old and new key sets are diffed and the dropped objects deleted before the
// document is written; storage failures are logged, never returned.
func (s *Service) Update(ctx context.Context, actor, id string, in UpdateInput) (*post.Post, error) {
	before, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	patch := post.Patch{Title: in.Title, Content: in.Content}
	if in.FileURL.Set || in.ImageURL.Set {
		files := before.FileRefs
		if in.FileURL.Set {
			files = in.FileURL.Values
		}
		legacy := before.LegacyImage
		if in.ImageURL.Set {
			legacy = in.ImageURL.First()
		}

		oldKeys := s.norm.ExtractKeys(before.FileRefs, before.LegacyImage)
		newKeys := s.ingressKeys(files, legacy)
		s.reconcile(ctx, "update", id, oldKeys, newKeys)

		patch.FileRefs = &newKeys
		patch.ClearLegacy = before.LegacyImage != ""
	}

	updated, err := s.repo.UpdateFields(ctx, id, patch)
	if err != nil {
		metrics.PostMutations.WithLabelValues("update", "error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update post %s: %w", id, err)
	}
	metrics.PostMutations.WithLabelValues("update", "ok").Inc()
	return s.present(updated), nil
}

// Delete removes every object the post references, then the document.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	p, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, p)
}

// AdminDelete is Delete without the ownership check.
func (s *Service) AdminDelete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, p)
}

func (s *Service) remove(ctx context.Context, p *post.Post) error {
	ctx, cancel := detached(ctx)
	defer cancel()
	id := p.ID.Hex()
	s.reconcile(ctx, "delete", id, s.norm.ExtractKeys(p.FileRefs, p.LegacyImage), nil)
	if err := s.repo.Remove(ctx, id); err != nil {
		metrics.PostMutations.WithLabelValues("delete", "error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("remove post %s: %w", id, err)
	}
	metrics.PostMutations.WithLabelValues("delete", "ok").Inc()
	logger.Infof("post deleted id=%s user=%s", id, p.Owner)
	return nil
}

func (s *Service) reconcile(ctx context.Context, op, id string, oldKeys, newKeys []string) {
	res := s.rec.Apply(ctx, oldKeys, newKeys)
	if len(res.Deleted) > 0 {
		logger.Debugf("%s post %s: deleted objects %v", op, id, res.Deleted)
	}
	if !res.OK() {
		reasons := make([]string, 0, len(res.Failed))
		for _, f := range res.Failed {
			reasons = append(reasons, f.Key+": "+f.Reason)
		}
		logger.Warnw("storage delete partial failure",
			"op", op,
			"post", id,
			"failed", len(res.Failed),
			"reasons", strings.Join(reasons, "; "),
		)
	}
}

// AdminList returns one page of all posts, optionally filtered by owner and text.
func (s *Service) AdminList(ctx context.Context, q AdminQuery) (*Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = defaultPageSize
	}
	if q.Size > maxPageSize {
		q.Size = maxPageSize
	}
	f := post.Filter{
		Owner: q.Owner,
		Q:     strings.TrimSpace(q.Q),
		Skip:  int64((q.Page - 1) * q.Size),
		Limit: int64(q.Size),
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return &Page{Items: s.presentAll(items), Page: q.Page, Size: q.Size, Total: total}, nil
}
