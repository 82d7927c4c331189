package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// errorStatusAndBody конвертирует доменную ошибку в HTTP-статус и JSON-тело.
// Правило: 404 — «не существует», 403 — «существует, но чужой», 400 —
// ошибки валидации и пустая корзина, 502 — отказ внешнего сервиса,
// остальное — 500 с generic-сообщением; детали уходят только в лог.
func errorStatusAndBody(c *gin.Context, logger *log.Entry, err error) (int, any) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, errorResponse{Error: domain.ErrOrderNotFound.Error()}
	case errors.Is(err, domain.ErrOrderForbidden):
		return http.StatusForbidden, errorResponse{Error: domain.ErrOrderForbidden.Error()}
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, errorResponse{Error: domain.ErrEmptyCart.Error()}
	case isValidationError(err):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	default:
		if remote, ok := domain.AsRemoteError(err); ok {
			logger.WithError(err).WithFields(log.Fields{
				"service": remote.Service,
				"path":    c.FullPath(),
			}).Error("remote service call failed")
			return http.StatusBadGateway, errorResponse{Error: "upstream service is unavailable"}
		}
		logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

func writeError(c *gin.Context, logger *log.Entry, err error) {
	status, body := errorStatusAndBody(c, logger, err)
	c.JSON(status, body)
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrUserRequired) ||
		errors.Is(err, domain.ErrItemsRequired) ||
		errors.Is(err, domain.ErrItemProductRequired) ||
		errors.Is(err, domain.ErrItemQtyInvalid) ||
		errors.Is(err, domain.ErrItemPriceInvalid) ||
		errors.Is(err, domain.ErrItemConflict)
}
