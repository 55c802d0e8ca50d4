package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/core/user"
	"github.com/trezcool/maktab/services/pdfcache"
)

type authResponse struct {
	Token   string    `json:"token" validate:"required"`
	User    user.User `json:"user"`
	IsAdmin bool      `json:"is_admin"`
}

type tokenResponse struct {
	Token string `json:"token" validate:"required"`
}

// Session is a signed-in user. It is safe for concurrent use.
type Session struct {
	client  *Client
	mu      sync.RWMutex
	token   string
	user    user.User
	isAdmin bool
}

// Authentication

func (c *Client) authenticate(ctx context.Context, path string, body interface{}) (*Session, error) {
	var res authResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: body, out: &res}); err != nil {
		return nil, err
	}
	return &Session{client: c, token: res.Token, user: res.User, isAdmin: res.IsAdmin}, nil
}

func (c *Client) SignIn(ctx context.Context, creds user.Credentials) (*Session, error) {
	return c.authenticate(ctx, "/v1/auth/sign-in", creds)
}

func (c *Client) SignUp(ctx context.Context, creds user.Credentials) (*Session, error) {
	return c.authenticate(ctx, "/v1/auth/sign-up", creds)
}

func (c *Client) SignInWithGoogle(ctx context.Context, idToken string) (*Session, error) {
	return c.authenticate(ctx, "/v1/auth/google", map[string]string{"id_token": idToken})
}

// Resume rebuilds a session from a stored token. The token is checked by the next call.
func (c *Client) Resume(token string) *Session {
	return &Session{client: c, token: token}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// do sends an authenticated request. The session is cleared when the server rejects it.
func (s *Session) do(ctx context.Context, req request) error {
	req.token = s.Token()
	if req.token == "" {
		return ErrSignedOut
	}
	err := s.client.do(ctx, req)
	if err != nil && IsUnauthorized(err) {
		s.clear()
	}
	return err
}

// SignOut revokes the session on the server. The session is unusable afterwards, even on error.
func (s *Session) SignOut(ctx context.Context) error {
	err := s.do(ctx, request{method: http.MethodPost, path: "/v1/auth/sign-out"})
	s.clear()
	if IsUnauthorized(err) {
		return nil
	}
	return err
}

// Refresh replaces the token with a fresh one for the same session.
func (s *Session) Refresh(ctx context.Context) error {
	var res tokenResponse
	if err := s.do(ctx, request{method: http.MethodPost, path: "/v1/auth/token-refresh", out: &res}); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = res.Token
	s.mu.Unlock()
	return nil
}

// Reads

func subjectQuery(subjectID string) url.Values {
	if subjectID == "" {
		return nil
	}
	return url.Values{"subject_id": {subjectID}}
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}

func (s *Session) Subjects(ctx context.Context) ([]subject.Subject, error) {
	var res []subject.Subject
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/subjects", out: &res})
	return res, err
}

// Lessons lists the lessons of a subject ("" for all) with the user's download state.
func (s *Session) Lessons(ctx context.Context, subjectID string) ([]lesson.StudentLesson, error) {
	var res []lesson.StudentLesson
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/lessons", query: subjectQuery(subjectID), out: &res})
	return res, err
}

func (s *Session) Tests(ctx context.Context, subjectID string) ([]quiz.StudentTest, error) {
	var res []quiz.StudentTest
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/tests", query: subjectQuery(subjectID), out: &res})
	return res, err
}

// Questions returns the questions of an active test, in order, without their correct option.
func (s *Session) Questions(ctx context.Context, testID string) ([]quiz.StudentQuestion, error) {
	var res []quiz.StudentQuestion
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/tests/" + url.PathEscape(testID) + "/questions", out: &res})
	return res, err
}

func (s *Session) Rankings(ctx context.Context, limit int) ([]ranking.Entry, error) {
	var res []ranking.Entry
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/rankings", query: limitQuery(limit), out: &res})
	return res, err
}

// MyRanking returns nil until the user has taken a test.
func (s *Session) MyRanking(ctx context.Context) (*ranking.Entry, error) {
	var res *ranking.Entry
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/me/ranking", out: &res})
	return res, err
}

func (s *Session) MyResults(ctx context.Context, limit int) ([]ranking.TestResult, error) {
	var res []ranking.TestResult
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/me/results", query: limitQuery(limit), out: &res})
	return res, err
}

func (s *Session) Profile(ctx context.Context) (user.Profile, error) {
	var res user.Profile
	err := s.do(ctx, request{method: http.MethodGet, path: "/v1/me/profile", out: &res})
	return res, err
}

// Writes

func (s *Session) UpdateProfile(ctx context.Context, up user.UpdateProfile) (user.Profile, error) {
	var res user.Profile
	err := s.do(ctx, request{method: http.MethodPut, path: "/v1/me/profile", body: up, out: &res})
	return res, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadAvatar sends a picture; the server stores it re-encoded.
func (s *Session) UploadAvatar(ctx context.Context, filename, contentType string, r io.Reader) (user.Profile, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "creating multipart body")
	}
	if _, err = io.Copy(part, r); err != nil {
		return user.Profile{}, errors.Wrap(err, "reading avatar")
	}
	if err = w.Close(); err != nil {
		return user.Profile{}, errors.Wrap(err, "creating multipart body")
	}

	var res user.Profile
	err = s.do(ctx, request{
		method:      http.MethodPut,
		path:        "/v1/me/avatar",
		body:        &buf,
		contentType: w.FormDataContentType(),
		out:         &res,
	})
	return res, err
}

// SubmitAnswers sends the answers (question id -> label) of a test. It is never retried:
// a lost response must not turn into a duplicate attempt.
func (s *Session) SubmitAnswers(ctx context.Context, testID string, answers map[string]string) (quiz.Result, error) {
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sub := quiz.Submission{Answers: make([]quiz.AnswerInput, 0, len(ids))}
	for _, id := range ids {
		sub.Answers = append(sub.Answers, quiz.AnswerInput{QuestionID: id, SelectedOption: answers[id]})
	}

	var res quiz.Result
	err := s.do(ctx, request{method: http.MethodPost, path: "/v1/tests/" + url.PathEscape(testID) + "/answers", body: sub, out: &res})
	return res, err
}

// RecordDownload marks the current version of a lesson's PDF as downloaded by the user.
func (s *Session) RecordDownload(ctx context.Context, lessonID string) (lesson.UserLesson, error) {
	var res lesson.UserLesson
	err := s.do(ctx, request{method: http.MethodPost, path: "/v1/lessons/" + url.PathEscape(lessonID) + "/download", out: &res})
	return res, err
}

// Adapters

// Submitter submits the answers of testID through the session.
func (s *Session) Submitter(testID string) quiz.Submitter {
	return quiz.SubmitterFunc(func(ctx context.Context, answers map[string]string) (quiz.Result, error) {
		return s.SubmitAnswers(ctx, testID, answers)
	})
}

// TakeTest loads the questions of testID and starts a test session submitting through s.
func (s *Session) TakeTest(ctx context.Context, testID string) (*quiz.Session, error) {
	questions, err := s.Questions(ctx, testID)
	if err != nil {
		return nil, err
	}
	return quiz.NewSession(questions, s.Submitter(testID))
}

type downloadRecorder struct{ s *Session }

func (r downloadRecorder) Authenticated() bool { return r.s.Authenticated() }

func (r downloadRecorder) RecordDownload(ctx context.Context, lessonID string) error {
	_, err := r.s.RecordDownload(ctx, lessonID)
	return err
}

// DownloadRecorder reports PDF downloads of the PDF cache to the API.
func (s *Session) DownloadRecorder() pdfcache.Recorder {
	return downloadRecorder{s}
}

// NewPDFCache returns a PDF cache in the configured cache dir that records downloads through s.
func (s *Session) NewPDFCache(logger core.Logger) *pdfcache.Manager {
	c := s.client
	return pdfcache.NewManager(c.cacheDir, pdfcache.NewHTTPFetcher(nil, c.maxRetries), s.DownloadRecorder(), logger)
}
