// Package server exposes a conversion pool over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alnah/go-mml2svg"
)

// FieldName is the form field carrying the MathML document, as a value or
// as a file upload.
const FieldName = "MathML"

// WarningsHeader reports how many engine warnings the conversion produced.
const WarningsHeader = "X-MathML2SVG-Warnings"

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is 0.
const DefaultMaxBodyBytes = 4 << 20

// maxMemory is the multipart size kept in memory before spilling to disk.
const maxMemory = 1 << 20

var errMissingField = errors.New("missing " + FieldName + " field")

// Converter is the part of mml2svg.Pool the server needs.
type Converter interface {
	Convert(ctx context.Context, doc mml2svg.Document) (*mml2svg.Result, error)
	States() []mml2svg.State
}

// Options configures the handler.
type Options struct {
	MaxBodyBytes int64               // 0 = DefaultMaxBodyBytes
	Gatherer     prometheus.Gatherer // nil disables /metrics
	Logger       *slog.Logger        // nil discards
}

type handler struct {
	conv    Converter
	maxBody int64
	logger  *slog.Logger
}

var releaseMode sync.Once

// New returns the HTTP handler:
//
//	POST /, POST /convert  convert the MathML field to SVG
//	GET  /healthz          worker states
//	GET  /metrics          Prometheus metrics
func New(conv Converter, opts Options) http.Handler {
	releaseMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	h := &handler{conv: conv, maxBody: opts.MaxBodyBytes, logger: opts.Logger}
	if h.maxBody == 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.logger))

	router.POST("/", h.convert)
	router.POST("/convert", h.convert)
	router.GET("/healthz", h.health)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func (h *handler) convert(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	doc, err := readDocument(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
			return
		}
		c.String(http.StatusBadRequest, "%s", err.Error())
		return
	}

	res, err := h.conv.Convert(c.Request.Context(), doc)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("conversion failed", "status", status, "kind", mml2svg.KindOf(err).String(), "error", err)
		}
		c.String(status, "%s", Message(err))
		return
	}

	c.Header(WarningsHeader, strconv.Itoa(len(res.Diagnostics.Warnings())))
	c.Data(http.StatusOK, "image/svg+xml", res.Output)
}

// readDocument extracts the MathML field from a urlencoded or multipart body.
func readDocument(c *gin.Context) (mml2svg.Document, error) {
	// ParseMultipartForm hides body read errors of a urlencoded form, so
	// only multipart bodies go through it.
	var err error
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		err = c.Request.ParseMultipartForm(maxMemory)
	} else {
		err = c.Request.ParseForm()
	}
	if err != nil {
		return nil, err
	}
	if v, ok := c.GetPostForm(FieldName); ok {
		return mml2svg.Document(v), nil
	}
	fh, ferr := c.FormFile(FieldName)
	if ferr != nil {
		return nil, errMissingField
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return mml2svg.Document(data), nil
}

func (h *handler) health(c *gin.Context) {
	states := h.conv.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "workers": names})
}

// StatusFor maps a conversion error to an HTTP status.
func StatusFor(err error) int {
	switch mml2svg.KindOf(err) {
	case mml2svg.KindSuccess:
		return http.StatusOK
	case mml2svg.KindInvalid:
		return http.StatusBadRequest
	case mml2svg.KindTimeout:
		return http.StatusGatewayTimeout
	case mml2svg.KindStartup, mml2svg.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message is the response body for a failed conversion: the first engine
// error line when there is one, the error text otherwise.
func Message(err error) string {
	var jobErr *mml2svg.JobError
	if errors.As(err, &jobErr) {
		if first := jobErr.Diagnostics.FirstError(); first != "" {
			return first
		}
	}
	return err.Error()
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
