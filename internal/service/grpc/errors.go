package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

// exhaustedMessage не раскрывает деталей конфликта клиенту.
const exhaustedMessage = "identifier allocation is temporarily unavailable, retry later"

// toStatus переводит доменную ошибку в gRPC-статус.
func toStatus(logger *log.Entry, operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	entry := logger.WithError(err).WithField("operation", operation)

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request deadline exceeded")
	case domain.IsInvalidInput(err):
		return status.Error(codes.InvalidArgument, invalidInputMessage(err))
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, domain.ErrAccountNotFound.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return status.Error(codes.AlreadyExists, domain.ErrAccountAlreadyExists.Error())
	case errors.Is(err, domain.ErrOrderAlreadyCanceled):
		return status.Error(codes.FailedPrecondition, domain.ErrOrderAlreadyCanceled.Error())
	case errors.Is(err, domain.ErrAllocationExhausted):
		entry.Error("identifier allocation exhausted")
		return status.Error(codes.Unavailable, exhaustedMessage)
	case domain.IsConflict(err):
		entry.Warn("allocation conflict escaped retry loop")
		return status.Error(codes.Aborted, "concurrent update, retry later")
	default:
		entry.Error("request failed")
		return status.Error(codes.Internal, "internal error")
	}
}

// invalidInputMessage собирает список нарушений без префикса категории.
func invalidInputMessage(err error) string {
	parts := strings.Split(err.Error(), "\n")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == domain.ErrInvalidInput.Error() {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return domain.ErrInvalidInput.Error()
	}
	return strings.Join(out, "; ")
}
