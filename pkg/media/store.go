// Package media fetches proof attachments from the SMS provider, persists them,
// and hands out signed, expiring download URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

// ErrFetchFailed is returned when the provider would not hand over the media.
// Recoverable: the lead is asked to resend.
var ErrFetchFailed = errors.New("media fetch failed")

const defaultContentType = "image/jpeg"

// Store persists proof media and signs download URLs for it
type Store struct {
	client        *httpclient.Client
	repo          repositories.MediaRepo
	logger        ectologger.Logger
	apiKey        string
	signingSecret []byte
	urlTTL        time.Duration
	publicBaseURL string
}

// NewStore creates a media store
func NewStore(client *httpclient.Client, repo repositories.MediaRepo, logger ectologger.Logger,
	apiKey, signingSecret, publicBaseURL string, urlTTL time.Duration) *Store {
	return &Store{
		client:        client,
		repo:          repo,
		logger:        logger,
		apiKey:        apiKey,
		signingSecret: []byte(signingSecret),
		urlTTL:        urlTTL,
		publicBaseURL: publicBaseURL,
	}
}

// FetchRemote downloads inbound media from the provider reference
func (s *Store) FetchRemote(ctx context.Context, ref string) ([]byte, string, error) {
	ctx, span := tracing.StartSpan(ctx, "media.Store.FetchRemote")
	defer span.End()

	headers := map[string]string{
		"Authorization": "Bearer " + s.apiKey,
	}

	resp, err := s.client.Get(ctx, ref, headers)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to fetch inbound media")
		metrics.MediaFetchesTotal.WithLabelValues("error").Inc()
		return nil, "", ErrFetchFailed
	}

	if !resp.OK() {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"status": resp.StatusCode,
		}).Error("provider rejected media fetch")
		metrics.MediaFetchesTotal.WithLabelValues("rejected").Inc()
		return nil, "", ErrFetchFailed
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	metrics.MediaFetchesTotal.WithLabelValues("ok").Inc()
	return resp.Body, contentType, nil
}

// Save persists fetched media under a key derived from the lead's phone
func (s *Store) Save(ctx context.Context, phone string, body []byte, contentType string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "media.Store.Save")
	defer span.End()

	key := fmt.Sprintf("proofs/%s/%d.jpg", phone, time.Now().UnixMilli())
	object := &models.MediaObject{
		Key:         key,
		ContentType: contentType,
		Body:        body,
	}

	if err := s.repo.Store(ctx, object); err != nil {
		return "", err
	}

	return key, nil
}

// Get loads stored media by key
func (s *Store) Get(ctx context.Context, key string) (*models.MediaObject, error) {
	return s.repo.GetByKey(ctx, key)
}

type urlClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// SignURL returns a public download URL for the key, valid for the configured
// TTL. Returns an empty string when signing is not possible; callers treat that
// as a missing URL, not a failure.
func (s *Store) SignURL(key string) string {
	if len(s.signingSecret) == 0 {
		return ""
	}

	claims := urlClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.urlTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingSecret)
	if err != nil {
		s.logger.WithError(err).Error("failed to sign media URL")
		return ""
	}

	return fmt.Sprintf("%s/media/%s?token=%s", s.publicBaseURL, key, token)
}

// VerifyToken checks that token grants access to key and has not expired
func (s *Store) VerifyToken(token string, key string) bool {
	if len(s.signingSecret) == 0 {
		return false
	}

	var claims urlClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingSecret, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}

	return claims.Key == key
}
