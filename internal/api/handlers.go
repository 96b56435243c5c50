package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gyeh/feesched/internal/contractfile"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/pricing"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// analyzeRequest is the JSON body of POST /api/v1/analyze.
type analyzeRequest struct {
	Lines        []model.ContractLine `json:"lines"`
	Zip          string               `json:"zip"`
	LocalityCode string               `json:"locality_code"`
	Year         int                  `json:"year"`
	Setting      string               `json:"setting"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleYears(c *gin.Context) {
	years, err := s.engine.Years(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"years": years})
}

func (s *Server) handlePrice(c *gin.Context) {
	year, err := intParam(c.Query("year"), "year")
	if err != nil {
		s.writeError(c, err)
		return
	}
	setting, err := model.ParseSetting(c.Query("setting"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	code := c.Query("code")
	if strings.TrimSpace(code) == "" {
		s.writeError(c, model.Errorf(model.KindInvalidInput, "code is required"))
		return
	}

	q, err := s.engine.Quote(c.Request.Context(), pricing.QuoteRequest{
		Code:         code,
		Modifier:     c.Query("modifier"),
		Zip:          c.Query("zip"),
		LocalityCode: c.Query("locality_code"),
		Year:         year,
		Setting:      setting,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleSearch(c *gin.Context) {
	ctx := c.Request.Context()
	year, err := intParam(c.Query("year"), "year")
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, err := intParam(c.Query("limit"), "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if year, err = s.engine.Year(ctx, year); err != nil {
		s.writeError(c, err)
		return
	}

	query := c.Query("q")
	results, err := s.engine.Search(ctx, query, year, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"year":    year,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, &model.Error{Kind: model.KindInvalidInput, Message: "malformed request body", Err: err})
		return
	}
	setting, err := model.ParseSetting(body.Setting)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.engine.Analyze(c.Request.Context(), model.AnalysisRequest{
		Lines:        body.Lines,
		Zip:          body.Zip,
		LocalityCode: body.LocalityCode,
		Year:         body.Year,
		Setting:      setting,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleAnalyzeUpload analyzes a multipart CSV or XLSX upload. The optional
// "format" field picks the response encoding; JSON is the default.
func (s *Server) handleAnalyzeUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.writeError(c, &model.Error{Kind: model.KindInvalidInput, Message: "multipart field \"file\" is required", Err: err})
		return
	}
	inFormat, err := contractfile.FormatFromName(fh.Filename)
	if err != nil {
		s.writeError(c, err)
		return
	}
	outFormat := contractfile.FormatJSON
	if f := c.PostForm("format"); f != "" {
		if outFormat, err = contractfile.ParseFormat(f); err != nil {
			s.writeError(c, err)
			return
		}
	}
	year, err := intParam(c.PostForm("year"), "year")
	if err != nil {
		s.writeError(c, err)
		return
	}
	setting, err := model.ParseSetting(c.PostForm("setting"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	res, err := s.engine.AnalyzeFile(c.Request.Context(), f, inFormat, model.AnalysisRequest{
		Zip:          c.PostForm("zip"),
		LocalityCode: c.PostForm("locality_code"),
		Year:         year,
		Setting:      setting,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	if outFormat == contractfile.FormatJSON {
		c.JSON(http.StatusOK, res)
		return
	}
	var buf bytes.Buffer
	if err := contractfile.Write(&buf, res, outFormat); err != nil {
		s.writeError(c, fmt.Errorf("encode %s: %w", outFormat, err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="analysis-%s.%s"`, res.AnalysisID, outFormat))
	c.Data(http.StatusOK, contractfile.ContentType(outFormat), buf.Bytes())
}

// writeError maps an engine error to its HTTP status and error body.
func (s *Server) writeError(c *gin.Context, err error) {
	body := errorBody{Kind: "INTERNAL", Message: "internal error"}
	var me *model.Error
	if errors.As(err, &me) {
		body = errorBody{Kind: string(me.Kind), Message: me.Message}
		if me.Err != nil {
			body.Message += ": " + me.Err.Error()
		}
	} else {
		s.log.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("request failed")
	}
	c.AbortWithStatusJSON(statusFor(model.KindOf(err)), gin.H{"error": body})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidInput, model.KindLocalityUnresolvable, model.KindRowParse:
		return http.StatusBadRequest
	case model.KindCodeNotFound, model.KindLocalityNotFound:
		return http.StatusNotFound
	case model.KindUnsupportedYear:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.Errorf(model.KindInvalidInput, "%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
