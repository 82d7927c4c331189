package rest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	// Срок хранения сохранённого ответа; после истечения ключ можно
	// использовать заново.
	idempotencyTTL = 24 * time.Hour
)

// withIdempotency выполняет handle с защитой по заголовку Idempotency-Key.
// Повтор запроса с тем же ключом и телом возвращает сохранённый ответ без
// повторного выполнения workflow; тот же ключ с другим телом — 422; ключ,
// запрос по которому ещё обрабатывается — 409. Без заголовка или без
// репозитория запрос выполняется как обычно.
func (h *OrderHandler) withIdempotency(c *gin.Context, body []byte, handle func() (int, any)) {
	key := c.GetHeader(idempotencyKeyHeader)
	if key == "" || h.idempotency == nil {
		status, response := handle()
		c.JSON(status, response)
		return
	}

	requestHash := hashRequestBody(body)
	_, err := h.idempotency.CreateProcessing(key, requestHash, h.now().Add(idempotencyTTL))
	if err != nil {
		h.replayOrReject(c, key, err)
		return
	}

	status, response := handle()

	stored, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		h.logger.WithError(marshalErr).WithField("idempotency_key", key).
			Error("failed to serialize response for idempotency store")
		c.JSON(status, response)
		return
	}

	mark := h.idempotency.MarkDone
	if status >= http.StatusBadRequest {
		mark = h.idempotency.MarkFailed
	}
	if err := mark(key, stored, status); err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).
			Warn("failed to record idempotency result")
	}

	c.JSON(status, response)
}

func (h *OrderHandler) replayOrReject(c *gin.Context, key string, err error) {
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: domain.ErrIdempotencyHashMismatch.Error()})
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		record, getErr := h.idempotency.Get(key)
		if getErr != nil {
			h.logger.WithError(getErr).WithField("idempotency_key", key).
				Error("failed to load stored idempotency record")
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		if !record.Completed() {
			c.JSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key is still in progress"})
			return
		}
		h.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"status":          record.HTTPStatus,
		}).Info("replaying stored response for idempotency key")
		c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
	default:
		h.logger.WithError(err).WithField("idempotency_key", key).
			Error("idempotency check failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func hashRequestBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	defer func() {
		_ = c.Request.Body.Close()
	}()
	return io.ReadAll(c.Request.Body)
}
