// Package server exposes the distance pipeline over HTTP. Runs are submitted as jobs,
// followed through polling or a websocket and exported once finished.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"address-distance/internal/calculator"
	"address-distance/internal/excel"
	"address-distance/internal/input"
	"address-distance/internal/jobs"
	"address-distance/internal/models"
	"address-distance/internal/report"
	"address-distance/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	sessionName   = "address-distance"
	lastJobKey    = "last_job"
	historyLimit  = 20
	maxHistory    = 100
	maxUploadSize = 10 << 20
)

// History lists persisted runs. *store.PostgresRunStore satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.RunSummary, error)
}

type Options struct {
	Runner        *jobs.Runner
	History       History // nil disables /history
	SessionSecret string
}

type Server struct {
	runner  *jobs.Runner
	history History
}

// New builds the gin engine with every route registered.
func New(opts Options) *gin.Engine {
	s := &Server{runner: opts.Runner, history: opts.History}

	r := gin.Default()
	r.MaxMultipartMemory = maxUploadSize

	cookieStore := cookie.NewStore([]byte(opts.SessionSecret))
	r.Use(sessions.Sessions(sessionName, cookieStore))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	runs := r.Group("/runs")
	{
		runs.POST("", s.createRun)
		runs.GET("/last", s.lastRun)
		runs.GET("/:id", s.getRun)
		runs.GET("/:id/logs", s.getLogs)
		runs.GET("/:id/ws", s.streamRun)
		runs.GET("/:id/export", s.exportRun)
	}

	r.GET("/history", s.listHistory)

	return r
}

type runRequest struct {
	Origin       string   `json:"origin"`
	Destinations []string `json:"destinations"`
	Strategy     string   `json:"strategy"`
}

func errorJSON(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func (s *Server) createRun(c *gin.Context) {
	var body runRequest
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&body); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	} else {
		var err error
		body, err = readForm(c)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	req, err := buildRequest(body)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.runner.Submit(req)
	if errors.Is(err, jobs.ErrQueueFull) {
		errorJSON(c, http.StatusServiceUnavailable, "too many runs waiting, try again later")
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	session := sessions.Default(c)
	session.Set(lastJobKey, job.ID)
	if err := session.Save(); err != nil {
		log.Printf("saving session: %v", err)
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// readForm collects a multipart or urlencoded submission. Destinations come from the
// addresses textarea followed by the uploaded file, if any.
func readForm(c *gin.Context) (runRequest, error) {
	body := runRequest{
		Origin:       c.PostForm("origin"),
		Strategy:     c.PostForm("strategy"),
		Destinations: input.ParseText(c.PostForm("addresses")),
	}

	fh, err := c.FormFile("input_file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return body, nil
	}
	if err != nil {
		return body, fmt.Errorf("reading upload: %w", err)
	}

	addresses, err := readUpload(fh)
	if err != nil {
		return body, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	body.Destinations = append(body.Destinations, addresses...)

	return body, nil
}

func readUpload(fh *multipart.FileHeader) ([]string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".txt", ".csv":
		return input.ReadLines(f)
	default:
		wb, err := excel.OpenReader(f)
		if err != nil {
			return nil, err
		}
		defer wb.Close()
		return excel.ReadAddresses(wb)
	}
}

func buildRequest(body runRequest) (calculator.Request, error) {
	origin := input.Clean([]string{body.Origin})
	if len(origin) == 0 {
		return calculator.Request{}, errors.New("origin address is required")
	}

	destinations := input.Clean(body.Destinations)
	if len(destinations) == 0 {
		return calculator.Request{}, errors.New("at least one destination address is required")
	}

	strategy, err := models.ParseStrategy(body.Strategy)
	if err != nil {
		return calculator.Request{}, err
	}

	return calculator.Request{Origin: origin[0], Destinations: destinations, Strategy: strategy}, nil
}

func (s *Server) job(c *gin.Context) *jobs.Job {
	job := s.runner.Store().Get(c.Param("id"))
	if job == nil {
		errorJSON(c, http.StatusNotFound, "run not found")
	}
	return job
}

func (s *Server) lastRun(c *gin.Context) {
	id, _ := sessions.Default(c).Get(lastJobKey).(string)
	job := s.runner.Store().Get(id)
	if job == nil {
		errorJSON(c, http.StatusNotFound, "no run in this session")
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

func (s *Server) getRun(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

func (s *Server) getLogs(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}

	snap := job.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"logs":     job.Logs(),
		"status":   snap.Status,
		"progress": snap.Progress,
	})
}

func (s *Server) exportRun(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}

	run := job.Run()
	if run == nil {
		errorJSON(c, http.StatusConflict, "run has no results yet")
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	name := report.Filename(format, time.Now())

	switch format {
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := report.WriteCSV(c.Writer, run.Records); err != nil {
			log.Printf("export %s as csv: %v", job.ID, err)
		}
	case "xlsx":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Status(http.StatusOK)
		if err := excel.WriteResultTo(c.Writer, run.Records); err != nil {
			log.Printf("export %s as xlsx: %v", job.ID, err)
		}
	default:
		errorJSON(c, http.StatusBadRequest, "format must be csv or xlsx")
	}
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		errorJSON(c, http.StatusNotFound, "run history is not configured")
		return
	}

	limit := historyLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}

	runs, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Printf("listing history: %v", err)
		errorJSON(c, http.StatusInternalServerError, "could not load history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
