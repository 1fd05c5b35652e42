package grpcsvc

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

const (
	idempotencyKeyHeader   = "idempotency-key"
	replayedFailureMessage = "previous request with the same idempotency key failed"

	idempotencySettleTimeout = 5 * time.Second
)

// failureRecord — тело, которое сохраняется для запроса, завершившегося ошибкой.
type failureRecord struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message"`
}

// withIdempotency выполняет handler не более одного раза на idempotency-key:
// повтор получает сохранённый ответ и не выделяет второй номер.
func withIdempotency[T any](
	s *Server,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	key := idempotencyKey(ctx)
	if s.idemRepo == nil || key == "" {
		return handler(ctx)
	}
	logger := s.logger.WithField("idempotency_key", key)

	fingerprint, err := requestFingerprint(method, req)
	if err != nil {
		logger.WithError(err).WithField("method", method).Warn("cannot fingerprint request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(ctx, key, fingerprint, s.now().UTC().Add(s.idemTTL))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return replay[T](s, record)
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	default:
		logger.WithError(err).Warn("cannot claim idempotency key")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	resp, err := handler(ctx)
	// Номер уже мог быть выделен: запись закрывается и после отмены запроса,
	// иначе ключ остаётся processing до истечения TTL.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencySettleTimeout)
	defer cancel()
	if err != nil {
		s.rememberFailure(ctx, key, err)
		return nil, err
	}
	s.rememberSuccess(ctx, key, resp)
	return resp, nil
}

// replay отдаёт результат уже выполненного запроса с тем же ключом.
func replay[T any](s *Server, record domain.IdempotencyRecord) (*T, error) {
	if !record.Settled() {
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	}
	if record.Status == domain.IdempotencyStatusFailed {
		return nil, failureFromRecord(record)
	}
	if len(record.ResponseBody) == 0 {
		return nil, status.Error(codes.Internal, "idempotency cache is empty")
	}

	resp := new(T)
	if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("cached response is not decodable")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return resp, nil
}

func (s *Server) rememberSuccess(ctx context.Context, key string, resp any) {
	body, err := json.Marshal(resp)
	if err == nil {
		err = s.idemRepo.MarkDone(ctx, key, body, int(codes.OK))
	}
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("response not cached")
	}
}

// rememberFailure сохраняет gRPC-код: повтор с тем же ключом получит ту же ошибку.
// После Unavailable номер не выделен, и клиент повторяет уже с новым ключом.
func (s *Server) rememberFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	f := failureRecord{Code: st.Code(), Message: st.Message()}
	if f.Code == codes.OK {
		f.Code = codes.Internal
	}

	body, err := json.Marshal(f)
	if err != nil {
		body = nil
	}
	if err := s.idemRepo.MarkFailed(ctx, key, body, int(f.Code)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failure not cached")
	}
}

func failureFromRecord(record domain.IdempotencyRecord) error {
	var f failureRecord
	if err := json.Unmarshal(record.ResponseBody, &f); err == nil && f.Code != codes.OK {
		return status.Error(f.Code, cmp.Or(f.Message, replayedFailureMessage))
	}
	if c := codes.Code(record.StatusCode); record.StatusCode > 0 && c <= codes.Unauthenticated {
		return status.Error(c, replayedFailureMessage)
	}
	return status.Error(codes.Internal, replayedFailureMessage)
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(idempotencyKeyHeader); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// requestFingerprint — sha256 от имени метода и JSON запроса.
func requestFingerprint(method string, req any) (string, error) {
	if req == nil {
		return "", errors.New("request is nil")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	_, _ = io.WriteString(h, method)
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}
