package main

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
)

type answerFunc func(ctx context.Context, question string) (sqlrag.ChainResult, error)

type pageData struct {
	Question string
	Answer   template.HTML
	Error    string
}

const maxQuestionLength = 2000

//nolint:lll
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Retail Store Assistant</title>
<style>body{font-family:sans-serif;max-width:720px;margin:2rem auto}input[type=text]{width:80%}.error{color:#b00020}</style>
</head>
<body>
<h1>Retail Store Assistant 🛍️</h1>
<form method="post" action="/">
<input type="text" name="question" placeholder="Your question here" value="{{.Question}}" autofocus>
<button type="submit">Submit</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Answer}}<div class="answer">{{.Answer}}</div>{{end}}
</body>
</html>
`

var page = template.Must(template.New("page").Parse(pageTemplate))

func newServeMux(answer answerFunc, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		renderPage(w, http.StatusOK, pageData{}, logger)
	})

	mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
		question := strings.TrimSpace(r.FormValue("question"))
		data := pageData{Question: question}

		switch {
		case question == "":
			// Nothing to answer, same as submitting an empty box.
			renderPage(w, http.StatusOK, data, logger)
			return
		case len(question) > maxQuestionLength:
			data.Error = "The question is too long."
			renderPage(w, http.StatusBadRequest, data, logger)
			return
		}

		result, err := answer(r.Context(), question)
		if err != nil {
			logger.Error("Failed to answer question", "question", question, "error", err)
			data.Error = userMessage(err)
			renderPage(w, http.StatusOK, data, logger)
			return
		}

		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(result.FinalAnswer), &buf); err != nil {
			logger.Error("Failed to render answer", "error", err)
			data.Error = "The answer could not be displayed."
			renderPage(w, http.StatusInternalServerError, data, logger)
			return
		}
		// goldmark drops raw HTML from the answer by default.
		data.Answer = template.HTML(buf.String()) //nolint:gosec

		renderPage(w, http.StatusOK, data, logger)
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

func renderPage(w http.ResponseWriter, status int, data pageData, logger *slog.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		logger.Error("Failed to render page", "error", err)
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, sqlrag.ErrEmbeddingFailure), errors.Is(err, sqlrag.ErrIndexUnavailable):
		return "The example index is unavailable right now, please try again later."
	case errors.Is(err, sqlrag.ErrGenerationParse):
		return "The assistant produced an answer it could not understand, please rephrase the question."
	case errors.Is(err, sqlrag.ErrSQLExecution):
		return "The database could not run the query for this question, please rephrase it."
	case errors.Is(err, context.DeadlineExceeded):
		return "The assistant took too long to answer, please try again."
	}
	return "Something went wrong while answering the question."
}

func serve(ctx context.Context, addr string, answer answerFunc, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(answer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
