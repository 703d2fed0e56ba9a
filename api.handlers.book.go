package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// writeBookError maps a book service error to its response status and sends it.
func (api *APIHandler) writeBookError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, message string) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	var errResp *APIError
	switch {
	case IsValidationError(err):
		logger.Warn(message, zap.Error(err))
		errResp = NewAPIError(requestID, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, ErrBookNotFound):
		logger.Warn("book does not exist", zap.Error(err))
		errResp = NewAPIError(requestID, http.StatusNotFound, "book does not exist", EmptyData)
	case errors.Is(err, ErrConcurrencyConflict):
		logger.Warn("book concurrency conflict", zap.Error(err))
		errResp = NewAPIError(requestID, http.StatusConflict, "book was modified by another request", EmptyData)
	default:
		logger.Error(message, zap.Error(err))
		errResp = NewAPIError(requestID, http.StatusInternalServerError, message, EmptyData)
	}
	if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
}

// validBookID sends a bad request response and returns false when id is not a uuid.
func (api *APIHandler) validBookID(w http.ResponseWriter, r *http.Request, logger *zap.Logger, id string) bool {
	if api.idsHandler.IsValid(id, "") {
		return true
	}
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger.Warn("book id provided is not valid")
	errResp := NewAPIError(requestID, http.StatusBadRequest, "book id provided is not valid", EmptyData)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
	return false
}

// GetAllBooks godoc
//
//	@Summary	List all books
//	@Tags		books
//	@Produce	json
//	@Param		sort	query		string	false	"Ordering"	Enums(name, -name, creationTime, -creationTime)
//	@Success	200		{array}		Book
//	@Failure	400		{object}	APIError
//	@Failure	500		{object}	APIError
//	@Router		/book [get]
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	books, err := api.bookService.List(r.Context(), r.URL.Query().Get("sort"))
	if err != nil {
		api.writeBookError(w, r, logger, err, "failed to get all books")
		return
	}
	logger.Info("success to get all books", zap.Int("books.total", len(books)))
	if err = WriteResponse(r.Context(), w, http.StatusOK, books); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// GetOneBook godoc
//
//	@Summary	Get a book
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"Book ID"
//	@Success	200	{object}	Book
//	@Failure	400	{object}	APIError
//	@Failure	404	{object}	APIError
//	@Router		/book/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	logger := api.GetLoggerFromContext(r.Context()).With(zap.String("book.id", id))
	if !api.validBookID(w, r, logger, id) {
		return
	}
	book, err := api.bookService.Get(r.Context(), id)
	if err != nil {
		api.writeBookError(w, r, logger, err, "failed to get the book")
		return
	}
	logger.Info("success to get book")
	w.Header().Set("ETag", quoteETag(book.ConcurrencyStamp))
	if err = WriteResponse(r.Context(), w, http.StatusOK, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// CreateBook godoc
//
//	@Summary	Create a book
//	@Tags		books
//	@Produce	json
//	@Param		name	query		string	true	"Book name"	maxlength(128)
//	@Success	201		{object}	Book
//	@Header		201		{string}	Location	"/book/{id}"
//	@Failure	400		{object}	APIError
//	@Failure	500		{object}	APIError
//	@Router		/book [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	book, err := api.bookService.Insert(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		api.writeBookError(w, r, logger, err, "failed to create the book")
		return
	}
	logger.Info("success to create book", zap.String("book.id", book.ID))
	w.Header().Set("Location", "/book/"+book.ID)
	w.Header().Set("ETag", quoteETag(book.ConcurrencyStamp))
	if err = WriteResponse(r.Context(), w, http.StatusCreated, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// UpdateBook godoc
//
//	@Summary		Rename a book
//	@Description	The expected concurrency stamp comes from the If-Match header or the concurrencyStamp query.
//	@Tags			books
//	@Produce		json
//	@Param			id					path		string	true	"Book ID"
//	@Param			name				query		string	true	"Book name"	maxlength(128)
//	@Param			concurrencyStamp	query		string	false	"Expected concurrency stamp"
//	@Param			If-Match			header		string	false	"Expected concurrency stamp"
//	@Success		200					{object}	Book
//	@Failure		400					{object}	APIError
//	@Failure		404					{object}	APIError
//	@Failure		409					{object}	APIError
//	@Router			/book/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	logger := api.GetLoggerFromContext(r.Context()).With(zap.String("book.id", id))
	if !api.validBookID(w, r, logger, id) {
		return
	}
	q := r.URL.Query()
	stamp := unquoteETag(r.Header.Get("If-Match"))
	if stamp == "" {
		stamp = strings.TrimSpace(q.Get("concurrencyStamp"))
	}
	book, err := api.bookService.Update(r.Context(), id, q.Get("name"), stamp)
	if err != nil {
		api.writeBookError(w, r, logger, err, "failed to update the book")
		return
	}
	logger.Info("success to update book")
	w.Header().Set("ETag", quoteETag(book.ConcurrencyStamp))
	if err = WriteResponse(r.Context(), w, http.StatusOK, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// DeleteOneBook godoc
//
//	@Summary	Delete a book
//	@Tags		books
//	@Param		id	path	string	true	"Book ID"
//	@Success	204
//	@Failure	400	{object}	APIError
//	@Failure	404	{object}	APIError
//	@Router		/book/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	logger := api.GetLoggerFromContext(r.Context()).With(zap.String("book.id", id))
	if !api.validBookID(w, r, logger, id) {
		return
	}
	if err := api.bookService.Delete(r.Context(), id); err != nil {
		api.writeBookError(w, r, logger, err, "failed to delete the book")
		return
	}
	logger.Info("success to delete book")
	if err := WriteResponse(r.Context(), w, http.StatusNoContent, nil); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

func quoteETag(stamp string) string {
	return `"` + stamp + `"`
}

func unquoteETag(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")
	return strings.Trim(value, `"`)
}
