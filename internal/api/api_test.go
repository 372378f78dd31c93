package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"attendease/internal/alert"
	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/calendar"
	"attendease/internal/filestore"
	"attendease/internal/metrics"
	"attendease/internal/model"
	"attendease/internal/store/memory"
	"attendease/internal/subject"
	"attendease/internal/ticket"
	"attendease/internal/user"
)

type fixture struct {
	router       *gin.Engine
	teacherToken string
	studentToken string
	studentID    string
	otherToken   string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := zerolog.Nop()
	db := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	iss := auth.NewIssuer("test", "secret", time.Hour, 24*time.Hour)

	users := user.NewService(memory.NewUsers(db), iss, log).WithBcryptCost(bcrypt.MinCost)
	subjects := subject.NewService(memory.NewSubjects(db))
	disk, err := filestore.NewDisk(t.TempDir())
	require.NoError(t, err)

	srv := &Server{
		Users:          users,
		Subjects:       subjects,
		Attendance:     attendance.NewService(memory.NewAttendance(db), subjects, m, log),
		Tickets:        ticket.NewService(memory.NewTickets(db), memory.NewUsers(db), disk, 5_000_000, m, log),
		Alerts:         alert.NewService(alert.NewMemoryStore(), time.Minute, m),
		Calendar:       calendar.NewService(memory.NewCalendar(db)),
		Issuer:         iss,
		Metrics:        m,
		Gatherer:       reg,
		Checks:         map[string]HealthCheck{"db": func(context.Context) bool { return true }},
		MaxUploadBytes: 5_000_000,
		Log:            log,
	}

	f := &fixture{router: srv.Router()}
	register := func(in user.RegisterInput) (string, string) {
		u, err := users.Register(ctx, in)
		require.NoError(t, err)
		pair, err := iss.Issue(u.ID, u.Role)
		require.NoError(t, err)
		return u.ID, pair.AccessToken
	}
	_, f.teacherToken = register(user.RegisterInput{Name: "Mrs T", Email: "t@school.test", Password: "pw", Section: "A", Role: auth.RoleTeacher, RollNo: "T01"})
	f.studentID, f.studentToken = register(user.RegisterInput{Name: "Asha", Email: "asha@school.test", Password: "pw", Section: "A", RollNo: "R01"})
	_, f.otherToken = register(user.RegisterInput{Name: "Ben", Email: "ben@school.test", Password: "pw", Section: "B", RollNo: "R02"})

	_, err = subjects.Create(ctx, auth.Principal{UserID: "t", Role: auth.RoleTeacher}, subject.CreateInput{Name: "Intro to CS", Code: "CS101", Sections: []string{"A"}})
	require.NoError(t, err)
	return f
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type httpTest struct {
	name     string
	method   string
	path     string
	token    string
	body     any
	wantCode int
	wantMsg  string
}

func runTests(t *testing.T, f *fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantMsg != "" {
				var body struct{ Message string }
				decode(t, w, &body)
				assert.Equal(t, tt.wantMsg, body.Message)
			}
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	f := setup(t)
	login := map[string]string{"email": "asha@school.test", "password": "pw", "section": "A", "role": "student", "rollNo": "R01"}
	badSection := map[string]string{"email": "asha@school.test", "password": "pw", "section": "B", "role": "student", "rollNo": "R01"}

	runTests(t, f, []httpTest{
		{"register", http.MethodPost, "/api/register", "", map[string]string{"name": "Cy", "email": "cy@school.test", "password": "pw", "section": "B", "rollNo": "R03"}, http.StatusCreated, "User registered successfully"},
		{"register duplicate", http.MethodPost, "/api/register", "", map[string]string{"name": "Asha", "email": "asha@school.test", "password": "pw", "section": "A", "rollNo": "R01"}, http.StatusConflict, "user already exists"},
		{"register malformed", http.MethodPost, "/api/register", "", "{", http.StatusBadRequest, "invalid request body"},
		{"login wrong section", http.MethodPost, "/api/login", "", badSection, http.StatusUnauthorized, "invalid section"},
		{"login unknown", http.MethodPost, "/api/login", "", map[string]string{"email": "zz@school.test", "password": "pw"}, http.StatusNotFound, "user not found"},
		{"no token", http.MethodGet, "/api/me", "", nil, http.StatusUnauthorized, "authorization token missing"},
		{"bad token", http.MethodGet, "/api/me", "garbage", nil, http.StatusUnauthorized, "invalid token"},
		{"refresh garbage", http.MethodPost, "/api/refresh", "", map[string]string{"refresh_token": "x"}, http.StatusUnauthorized, "invalid refresh token"},
	})

	w := f.do(http.MethodPost, "/api/login", "", login)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token        string     `json:"token"`
		RefreshToken string     `json:"refresh_token"`
		User         model.User `json:"user"`
	}
	decode(t, w, &resp)
	assert.Equal(t, f.studentID, resp.User.ID)
	assert.NotContains(t, w.Body.String(), "password")

	w = f.do(http.MethodGet, "/api/me", resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/refresh", "", map[string]string{"refresh_token": resp.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/me", resp.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTeacherOnlyRoutes(t *testing.T) {
	f := setup(t)
	runTests(t, f, []httpTest{
		{"record", http.MethodPost, "/api/attendance", f.studentToken, map[string]any{}, http.StatusForbidden, "forbidden"},
		{"overview", http.MethodGet, "/api/attendance/overview", f.studentToken, nil, http.StatusForbidden, "forbidden"},
		{"overview alias", http.MethodGet, "/api/overview", f.studentToken, nil, http.StatusForbidden, "forbidden"},
		{"subject", http.MethodPost, "/api/subjects", f.studentToken, map[string]string{"name": "x", "code": "x"}, http.StatusForbidden, "forbidden"},
		{"alert", http.MethodPost, "/api/alerts", f.studentToken, map[string]string{"message": "x"}, http.StatusForbidden, "forbidden"},
		{"calendar", http.MethodPost, "/api/calendar", f.studentToken, map[string]string{"title": "x", "date": "2024-01-01"}, http.StatusForbidden, "forbidden"},
		{"approve", http.MethodPut, "/api/tickets/x/approve", f.studentToken, nil, http.StatusForbidden, "forbidden"},
	})
}

func TestAttendanceRoutes(t *testing.T) {
	f := setup(t)
	batch := map[string]any{
		"date":    "2024-01-10",
		"subject": "CS101",
		"data":    map[string]map[string]bool{f.studentID: {"CS101": true}, "nobody": {"MA101": true}},
	}

	runTests(t, f, []httpTest{
		{"empty", http.MethodPost, "/api/attendance", f.teacherToken, map[string]any{"date": "2024-01-10", "subjectCode": "CS101", "entries": map[string]any{}}, http.StatusBadRequest, "no data provided"},
		{"unknown subject", http.MethodPost, "/api/attendance", f.teacherToken, map[string]any{"date": "2024-01-10", "subjectCode": "ZZ1", "entries": map[string]any{f.studentID: map[string]bool{"ZZ1": true}}}, http.StatusNotFound, "subject not found"},
		{"bad date", http.MethodPost, "/api/attendance", f.teacherToken, map[string]any{"date": "10/01/2024", "subjectCode": "CS101", "entries": map[string]any{f.studentID: map[string]bool{"CS101": true}}}, http.StatusBadRequest, ""},
		{"unknown student", http.MethodPost, "/api/attendance", f.teacherToken, map[string]any{"date": "2024-01-10", "subjectCode": "CS101", "entries": map[string]any{"ghost": map[string]bool{"CS101": true}}}, http.StatusNotFound, ""},
	})

	w := f.do(http.MethodPost, "/api/attendance", f.teacherToken, batch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ack struct {
		Message  string   `json:"message"`
		Recorded int      `json:"recorded"`
		Skipped  []string `json:"skipped"`
	}
	decode(t, w, &ack)
	assert.Equal(t, "Attendance updated successfully", ack.Message)
	assert.Equal(t, 1, ack.Recorded)
	assert.Equal(t, []string{"nobody"}, ack.Skipped)

	w = f.do(http.MethodGet, "/api/attendance/overview", f.teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview []attendance.StudentOverview
	decode(t, w, &overview)
	require.Len(t, overview, 1)
	assert.Equal(t, 1, overview[0].ClassesAttended)
	assert.Equal(t, 100.0, overview[0].AttendancePercentage)

	w = f.do(http.MethodGet, "/api/attendance/details?subjectCode=CS101", f.studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"date":"2024-01-10","status":"present"}]`, w.Body.String())

	w = f.do(http.MethodGet, "/api/attendance", f.studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []model.AttendanceRecord
	decode(t, w, &recs)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SubjectRef{Name: "Intro to CS", Code: "CS101"}, recs[0].Subject)

	w = f.do(http.MethodGet, "/api/attendance?studentId="+f.studentID, f.otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/api/users/"+f.studentID, f.teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var u model.User
	decode(t, w, &u)
	assert.Equal(t, model.Summary{TotalAttended: 1, TotalClasses: 1, OverallPercentage: 100}, u.Attendance)
}

func multipartTicket(t *testing.T, document, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("document", document))
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestTicketRoutes(t *testing.T) {
	f := setup(t)

	body, ctype := multipartTicket(t, "medical", "note.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+f.studentToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tk model.Ticket
	decode(t, w, &tk)
	assert.Equal(t, model.TicketPending, tk.Status)
	assert.True(t, tk.HasFile())

	body, ctype = multipartTicket(t, "bad", "run.exe", "application/octet-stream", []byte("MZ"))
	req = httptest.NewRequest(http.MethodPost, "/api/tickets", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+f.studentToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/tickets", f.studentToken, map[string]string{"document": "late bus"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/tickets/"+tk.ID+"/file", f.teacherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got, _ := io.ReadAll(w.Body)
	assert.Equal(t, "%PDF-1.4", string(got))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	runTests(t, f, []httpTest{
		{"file forbidden", http.MethodGet, "/api/tickets/" + tk.ID + "/file", f.otherToken, nil, http.StatusForbidden, ""},
		{"approve", http.MethodPut, "/api/tickets/" + tk.ID + "/approve", f.teacherToken, nil, http.StatusOK, ""},
		{"reject unknown", http.MethodPut, "/api/tickets/nope/reject", f.teacherToken, nil, http.StatusNotFound, "ticket not found"},
	})

	w = f.do(http.MethodGet, "/api/tickets", f.otherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(http.MethodGet, "/api/tickets", f.teacherToken, nil)
	var all []model.Ticket
	decode(t, w, &all)
	assert.Len(t, all, 2)
}

func TestDirectoryRoutes(t *testing.T) {
	f := setup(t)
	runTests(t, f, []httpTest{
		{"create subject", http.MethodPost, "/api/subjects", f.teacherToken, map[string]any{"name": "Calculus", "code": "MA101", "sections": []string{"B"}}, http.StatusCreated, ""},
		{"duplicate subject", http.MethodPost, "/api/subjects", f.teacherToken, map[string]any{"name": "Calculus", "code": "MA101"}, http.StatusConflict, ""},
		{"alert", http.MethodPost, "/api/alerts", f.teacherToken, map[string]string{"message": "exam moved"}, http.StatusCreated, ""},
		{"empty alert", http.MethodPost, "/api/alerts", f.teacherToken, map[string]string{"message": ""}, http.StatusBadRequest, "message is required"},
		{"event", http.MethodPost, "/api/calendar", f.teacherToken, map[string]string{"title": "Finals", "date": "2024-05-20"}, http.StatusCreated, ""},
		{"event no title", http.MethodPost, "/api/calendar", f.teacherToken, map[string]string{"date": "2024-05-20"}, http.StatusBadRequest, "title and date are required"},
	})

	w := f.do(http.MethodGet, "/api/subjects?section=B", f.studentToken, nil)
	var subs []model.Subject
	decode(t, w, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, "MA101", subs[0].Code)

	w = f.do(http.MethodGet, "/api/alerts", f.studentToken, nil)
	var alerts []model.Alert
	decode(t, w, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "exam moved", alerts[0].Message)

	w = f.do(http.MethodGet, "/api/calendar", f.studentToken, nil)
	var events []model.CalendarEvent
	decode(t, w, &events)
	require.Len(t, events, 1)

	w = f.do(http.MethodGet, "/api/users?section=A", f.studentToken, nil)
	var profiles []user.Profile
	decode(t, w, &profiles)
	assert.Len(t, profiles, 2)

	w = f.do(http.MethodPut, "/api/users/"+f.studentID, f.otherToken, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":true}`, w.Body.String())

	f.do(http.MethodGet, "/api/alerts", f.studentToken, nil)
	w = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `attendease_http_requests_total{method="GET",route="/api/alerts",status="200"} 1`)
}
