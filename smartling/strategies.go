package smartling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/langmeta"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// Terminal job states.
const (
	stateCompleted = "COMPLETED"
	stateFailed    = "FAILED"
)

func emptyResult(langs []string) map[string][]*string {
	out := make(map[string][]*string, len(langs))
	for _, lang := range langs {
		out[lang] = []*string{}
	}
	return out
}

// Strategy returns the named strategy. fileURI is only used by JobBatch.
func (c *Client) Strategy(name, fileURI string) (translate.Translator, error) {
	switch name {
	case StrategyInline:
		if c.cfg.AccountUID == "" {
			return nil, fmt.Errorf("%s requires an account UID", name)
		}
		return c.Inline(), nil
	case StrategyJobs:
		if c.cfg.ProjectID == "" {
			return nil, fmt.Errorf("%s requires a project ID", name)
		}
		return c.JobBatch(fileURI), nil
	case StrategyFile:
		if c.cfg.AccountUID == "" {
			return nil, fmt.Errorf("%s requires an account UID", name)
		}
		return c.FileTranslation(), nil
	default:
		return nil, fmt.Errorf("unknown smartling strategy %q", name)
	}
}

// ---------------------------------------------------------------------------
// Inline: synchronous MT router, one call per language
// ---------------------------------------------------------------------------

// Inline translates through the synchronous MT router endpoint.
type Inline struct {
	c *Client
}

// Inline returns the synchronous strategy.
func (c *Client) Inline() *Inline { return &Inline{c: c} }

type mtItem struct {
	Key         string `json:"key"`
	SourceText  string `json:"sourceText,omitempty"`
	Translation string `json:"translationText,omitempty"`
}

func (s *Inline) TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error) {
	if len(texts) == 0 || len(langs) == 0 {
		return emptyResult(langs), nil
	}
	return translate.ForEachLanguage(ctx, langs, s.c.cfg.Concurrency, func(ctx context.Context, lang string) ([]*string, error) {
		return s.translateOne(ctx, texts, lang)
	})
}

func (s *Inline) translateOne(ctx context.Context, texts []string, lang string) ([]*string, error) {
	items := make([]mtItem, len(texts))
	for i, text := range texts {
		items[i] = mtItem{Key: strconv.Itoa(i), SourceText: text}
	}
	payload := map[string]any{
		"sourceLocaleId": langmeta.English,
		"targetLocaleId": langmeta.ToProvider(lang),
		"items":          items,
	}
	endpoint := s.c.endpoint("/mt-router-api/v2/accounts/%s/smartling-mt", s.c.cfg.AccountUID)

	body, err := s.c.do(ctx, lang, jsonRequest(http.MethodPost, endpoint, payload))
	if err != nil {
		return nil, err
	}
	var data struct {
		Items []mtItem `json:"items"`
	}
	if err := decodeData(body, &data); err != nil {
		return nil, fmt.Errorf("parsing MT response for %s: %w", lang, err)
	}

	// Results are matched by key, not by response order.
	out := make([]*string, len(texts))
	for _, item := range data.Items {
		i, err := strconv.Atoi(item.Key)
		if err != nil || i < 0 || i >= len(texts) {
			continue
		}
		tr := item.Translation
		out[i] = &tr
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// JobBatch: job + batch + file upload + poll + per-language download
// ---------------------------------------------------------------------------

// JobBatch translates through the Job Batches API of a project. FileURI
// identifies the uploaded string file; it is derived from the feed source
// location so each feed keeps its own file in the project.
type JobBatch struct {
	c       *Client
	FileURI string
}

// JobBatch returns the job/batch strategy for fileURI.
func (c *Client) JobBatch(fileURI string) *JobBatch {
	return &JobBatch{c: c, FileURI: fileURI}
}

func (s *JobBatch) TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error) {
	if len(texts) == 0 || len(langs) == 0 {
		return emptyResult(langs), nil
	}
	c := s.c
	project := c.cfg.ProjectID
	locales := providerLocales(langs)

	// 1. Job
	var job struct {
		TranslationJobUID string `json:"translationJobUid"`
	}
	body, err := c.do(ctx, "", jsonRequest(http.MethodPost, c.endpoint("/job-batches-api/v2/projects/%s/jobs", project), map[string]any{
		"nameTemplate":    c.cfg.JobName,
		"mode":            "REUSE_EXISTING",
		"salt":            "RANDOM_ALPHANUMERIC",
		"targetLocaleIds": locales,
	}))
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	if err := decodeData(body, &job); err != nil {
		return nil, fmt.Errorf("parsing job response: %w", err)
	}

	// 2. Batch
	var batch struct {
		BatchUID string `json:"batchUid"`
	}
	body, err = c.do(ctx, "", jsonRequest(http.MethodPost, c.endpoint("/job-batches-api/v2/projects/%s/batches", project), map[string]any{
		"authorize":         true,
		"translationJobUid": job.TranslationJobUID,
		"fileUris":          []string{s.FileURI},
	}))
	if err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}
	if err := decodeData(body, &batch); err != nil {
		return nil, fmt.Errorf("parsing batch response: %w", err)
	}

	// 3. Upload
	fields := [][2]string{{"fileUri", s.FileURI}, {"fileType", "json"}}
	for _, l := range locales {
		fields = append(fields, [2]string{"localeIdsToAuthorize[]", l})
	}
	uploadURL := c.endpoint("/job-batches-api/v2/projects/%s/batches/%s/file", project, batch.BatchUID)
	if _, err := c.do(ctx, "", multipartRequest(uploadURL, texts, fields, nil)); err != nil {
		return nil, fmt.Errorf("uploading batch file: %w", err)
	}

	// 4. Poll
	statusURL := c.endpoint("/job-batches-api/v2/projects/%s/batches/%s", project, batch.BatchUID)
	if err := c.poll(ctx, "job batch", batch.BatchUID, statusURL); err != nil {
		return nil, err
	}

	// 5. Download
	return translate.ForEachLanguage(ctx, langs, c.cfg.Concurrency, func(ctx context.Context, lang string) ([]*string, error) {
		q := url.Values{"fileUri": {s.FileURI}, "retrievalType": {"published"}}
		dl := c.endpoint("/files-api/v2/projects/%s/locales/%s/file", project, langmeta.ToProvider(lang)) + "?" + q.Encode()
		body, err := c.do(ctx, lang, jsonRequest(http.MethodGet, dl, nil))
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", lang, err)
		}
		return decodeList(body, lang)
	})
}

// ---------------------------------------------------------------------------
// FileTranslation: upload + MT + poll + per-language download
// ---------------------------------------------------------------------------

// FileTranslation translates through the File Translations API of an account.
type FileTranslation struct {
	c *Client
}

// FileTranslation returns the file-upload strategy.
func (c *Client) FileTranslation() *FileTranslation { return &FileTranslation{c: c} }

func (s *FileTranslation) TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error) {
	if len(texts) == 0 || len(langs) == 0 {
		return emptyResult(langs), nil
	}
	c := s.c
	account := c.cfg.AccountUID

	// 1. Upload
	var file struct {
		FileUID string `json:"fileUid"`
	}
	request := []byte(`{"fileType":"json"}`)
	body, err := c.do(ctx, "", multipartRequest(c.endpoint("/file-translations-api/v2/accounts/%s/files", account), texts, nil, request))
	if err != nil {
		return nil, fmt.Errorf("uploading file: %w", err)
	}
	if err := decodeData(body, &file); err != nil {
		return nil, fmt.Errorf("parsing upload response: %w", err)
	}

	// 2. Start MT
	var mt struct {
		MtUID string `json:"mtUid"`
	}
	body, err = c.do(ctx, "", jsonRequest(http.MethodPost, c.endpoint("/file-translations-api/v2/accounts/%s/files/%s/mt", account, file.FileUID), map[string]any{
		"sourceLocaleId":  langmeta.English,
		"targetLocaleIds": providerLocales(langs),
	}))
	if err != nil {
		return nil, fmt.Errorf("starting MT: %w", err)
	}
	if err := decodeData(body, &mt); err != nil {
		return nil, fmt.Errorf("parsing MT response: %w", err)
	}

	// 3. Poll
	statusURL := c.endpoint("/file-translations-api/v2/accounts/%s/files/%s/mt/%s/status", account, file.FileUID, mt.MtUID)
	if err := c.poll(ctx, "MT file", mt.MtUID, statusURL); err != nil {
		return nil, err
	}

	// 4. Download
	return translate.ForEachLanguage(ctx, langs, c.cfg.Concurrency, func(ctx context.Context, lang string) ([]*string, error) {
		dl := c.endpoint("/file-translations-api/v2/accounts/%s/files/%s/mt/%s/locales/%s/file", account, file.FileUID, mt.MtUID, langmeta.ToProvider(lang))
		body, err := c.do(ctx, lang, jsonRequest(http.MethodGet, dl, nil))
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", lang, err)
		}
		return decodeList(body, lang)
	})
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func providerLocales(langs []string) []string {
	out := make([]string, len(langs))
	for i, l := range langs {
		out[i] = langmeta.ToProvider(l)
	}
	return out
}

// poll checks statusURL every PollInterval until the job is COMPLETED or
// FAILED. Any other state keeps polling; only ctx bounds the wait. A status
// payload that is not an object is an error.
func (c *Client) poll(ctx context.Context, kind, uid, statusURL string) error {
	for {
		body, err := c.do(ctx, "", jsonRequest(http.MethodGet, statusURL, nil))
		if err != nil {
			return fmt.Errorf("polling %s %s: %w", kind, uid, err)
		}
		var raw json.RawMessage
		if err := decodeData(body, &raw); err != nil {
			return fmt.Errorf("parsing %s status: %w", kind, err)
		}
		var st struct {
			Status string `json:"status"`
			State  string `json:"state"`
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("parsing %s %s status: %w", kind, uid, err)
		}
		status := st.Status
		if status == "" {
			status = st.State
		}
		c.log("Smartling %s %s status: %s", kind, uid, status)

		switch status {
		case stateCompleted:
			return nil
		case stateFailed:
			return &JobFailedError{Kind: kind, UID: uid, Payload: string(raw)}
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// multipartRequest uploads texts as strings.json plus form fields and, when
// requestJSON is set, a JSON "request" part.
func multipartRequest(endpoint string, texts []string, fields [][2]string, requestJSON []byte) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		content, err := json.Marshal(texts)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="strings.json"`)
		h.Set("Content-Type", "application/json")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(content); err != nil {
			return nil, err
		}

		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return nil, err
			}
		}

		if requestJSON != nil {
			rh := make(textproto.MIMEHeader)
			rh.Set("Content-Disposition", `form-data; name="request"`)
			rh.Set("Content-Type", "application/json")
			rp, err := w.CreatePart(rh)
			if err != nil {
				return nil, err
			}
			if _, err := rp.Write(requestJSON); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}
}
