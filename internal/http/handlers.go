package http

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthbot/internal/core"
	"healthbot/internal/db"
	"healthbot/pkg"
	apperrors "healthbot/pkg/errors"

	"github.com/google/uuid"
)

// Store is the persistence surface the handlers read and write outside
// the intake pipeline. *db.Repository satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetUserByPhone(ctx context.Context, phone string) (*pkg.User, error)
	DeactivateUser(ctx context.Context, id uuid.UUID) error
	ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]pkg.Message, error)
	SetMessageIntent(ctx context.Context, messageID uuid.UUID, intent string) error
	CreateAppointment(ctx context.Context, a *pkg.Appointment) error
	ListUpcomingAppointments(ctx context.Context, userID uuid.UUID) ([]pkg.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status pkg.AppointmentStatus) error
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
	CreateMedication(ctx context.Context, m *pkg.Medication) error
	ListActiveMedications(ctx context.Context, userID uuid.UUID) ([]pkg.Medication, error)
	DeactivateMedication(ctx context.Context, id uuid.UUID) error
	CreateSymptomLog(ctx context.Context, s *pkg.SymptomLog) error
	ListSymptomLogs(ctx context.Context, userID uuid.UUID, limit int) ([]pkg.SymptomLog, error)
}

// Server bundles together the dependencies required by HTTP handlers. It
// implements http.Handler so it can be passed to http.ListenAndServe.
type Server struct {
	Intake       *core.Pipeline
	Store        Store
	Notifier     *db.Notifier
	Logger       *slog.Logger
	HistoryLimit int
}

// NewServer constructs a Server.
func NewServer(intake *core.Pipeline, store Store, notifier *db.Notifier, logger *slog.Logger, historyLimit int) *Server {
	return &Server{
		Intake:       intake,
		Store:        store,
		Notifier:     notifier,
		Logger:       logger,
		HistoryLimit: historyLimit,
	}
}

// ServeHTTP dispatches incoming requests based on the URL path. Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/" && r.Method == http.MethodGet:
		s.handleRoot(w, r)
	case path == "/api/v1/webhook/whatsapp" && r.Method == http.MethodGet:
		s.handleWebhookVerify(w, r)
	case path == "/api/v1/webhook/whatsapp" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case path == "/api/v1/health" && r.Method == http.MethodGet:
		s.handleHealth(w, r)
	case path == "/api/v1/health/db" && r.Method == http.MethodGet:
		s.handleHealthDB(w, r)
	case path == "/api/v1/health/ready" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	case path == "/api/v1/health/live" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	case strings.HasPrefix(path, "/api/v1/users/"):
		s.routeUser(w, r, strings.TrimPrefix(path, "/api/v1/users/"))
	case strings.HasPrefix(path, "/api/v1/messages/") && strings.HasSuffix(path, "/intent") && r.Method == http.MethodPost:
		s.handleSetIntent(w, r, pathSegment(path, 3))
	case strings.HasPrefix(path, "/api/v1/appointments/") && strings.HasSuffix(path, "/reminder") && r.Method == http.MethodPost:
		s.handleMarkReminderSent(w, r, pathSegment(path, 3))
	case strings.HasPrefix(path, "/api/v1/appointments/") && r.Method == http.MethodDelete:
		s.handleCancelAppointment(w, r, pathSegment(path, 3))
	case strings.HasPrefix(path, "/api/v1/medications/") && r.Method == http.MethodDelete:
		s.handleDeactivateMedication(w, r, pathSegment(path, 3))
	default:
		http.NotFound(w, r)
	}
}

// routeUser dispatches /api/v1/users/{phone}[/resource] requests.
func (s *Server) routeUser(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	phone := parts[0]
	if phone == "" {
		http.NotFound(w, r)
		return
	}
	resource := ""
	if len(parts) > 1 {
		resource = parts[1]
	}
	switch {
	case resource == "" && r.Method == http.MethodDelete:
		s.handleDeactivateUser(w, r, phone)
	case resource == "messages" && r.Method == http.MethodGet:
		s.handleListMessages(w, r, phone)
	case resource == "appointments" && r.Method == http.MethodPost:
		s.handleCreateAppointment(w, r, phone)
	case resource == "appointments" && r.Method == http.MethodGet:
		s.handleListAppointments(w, r, phone)
	case resource == "medications" && r.Method == http.MethodPost:
		s.handleCreateMedication(w, r, phone)
	case resource == "medications" && r.Method == http.MethodGet:
		s.handleListMedications(w, r, phone)
	case resource == "symptoms" && r.Method == http.MethodPost:
		s.handleCreateSymptomLog(w, r, phone)
	case resource == "symptoms" && r.Method == http.MethodGet:
		s.handleListSymptomLogs(w, r, phone)
	default:
		http.NotFound(w, r)
	}
}

func pathSegment(path string, i int) string {
	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if i-2 < len(parts) {
		return parts[i-2]
	}
	return ""
}

// handleRoot reports basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "healthbot",
		"status":  "running",
		"webhook": "/api/v1/webhook/whatsapp",
		"health":  "/api/v1/health",
	})
}

// handleWebhookVerify answers the provider's verification ping.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "webhook active",
	})
}

// handleWebhook is the main inbound endpoint. It parses the provider's
// form payload into a delivery, runs the intake pipeline and answers with
// a TwiML message envelope. Duplicates are acknowledged with an empty
// envelope so the provider stops retrying; transient storage errors map
// to 503 so it retries the whole delivery.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	delivery := pkg.Delivery{
		DeliveryID: r.FormValue("MessageSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}
	if n, err := strconv.Atoi(r.FormValue("NumMedia")); err == nil && n > 0 {
		for i := 0; i < n; i++ {
			if u := r.FormValue("MediaUrl" + strconv.Itoa(i)); u != "" {
				delivery.MediaURLs = append(delivery.MediaURLs, u)
			}
		}
	}

	result, err := s.Intake.Ingest(ctx, delivery)
	if err != nil && result == nil {
		s.writeError(w, err)
		return
	}
	if err != nil {
		// Inbound message is durable but the reply was lost. Acknowledge
		// so the provider does not redeliver; a retry would dedupe to a
		// replyless duplicate anyway.
		s.Logger.Warn("reply lost after intake", "delivery_id", delivery.DeliveryID, "error", err)
		writeTwiML(w, "")
		return
	}

	if result.Status == pkg.StatusRecorded && s.Notifier != nil {
		// Fire and forget: listeners learn about the new inbound message.
		id := result.InboundMessageID.String()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Notifier.Notify(ctx, id); err != nil {
				s.Logger.Warn("notify failed", "message_id", id, "error", err)
			}
		}()
	}

	if result.Status == pkg.StatusDuplicate {
		writeTwiML(w, "")
		return
	}
	writeTwiML(w, result.ReplyText)
}

// handleHealth is the basic liveness report.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "healthbot",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleHealthDB pings the backing store.
func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

// handleListMessages returns a contact's conversation history ordered by
// creation time.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	msgs, err := s.Store.ListMessages(ctx, user.ID, s.HistoryLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"messages": msgs,
	})
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Store.DeactivateUser(ctx, user.ID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleSetIntent(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	var body struct {
		Intent string `json:"intent"`
	}
	if err := decodeJSON(r.Body, &body); err != nil || body.Intent == "" {
		http.Error(w, "intent is required", http.StatusBadRequest)
		return
	}
	if err := s.Store.SetMessageIntent(r.Context(), id, body.Intent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body struct {
		AppointmentDate time.Time `json:"appointment_date"`
		AppointmentType string    `json:"appointment_type"`
		DoctorName      string    `json:"doctor_name"`
		ClinicName      string    `json:"clinic_name"`
		Reason          string    `json:"reason"`
		Notes           string    `json:"notes"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !body.AppointmentDate.After(time.Now()) {
		s.writeError(w, apperrors.ErrAppointmentInPast)
		return
	}
	appt := &pkg.Appointment{
		UserID:          user.ID,
		AppointmentDate: body.AppointmentDate,
		AppointmentType: body.AppointmentType,
		DoctorName:      body.DoctorName,
		ClinicName:      body.ClinicName,
		Reason:          body.Reason,
		Notes:           body.Notes,
	}
	if err := s.Store.CreateAppointment(ctx, appt); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	appts, err := s.Store.ListUpcomingAppointments(ctx, user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	if err := s.Store.UpdateAppointmentStatus(r.Context(), id, pkg.AppointmentCancelled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleMarkReminderSent(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	if err := s.Store.MarkReminderSent(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reminder_sent"})
}

func (s *Server) handleCreateMedication(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body struct {
		Name         string     `json:"name"`
		Dosage       string     `json:"dosage"`
		Frequency    string     `json:"frequency"`
		Times        []string   `json:"times"`
		StartDate    *time.Time `json:"start_date"`
		EndDate      *time.Time `json:"end_date"`
		Instructions string     `json:"instructions"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		s.writeError(w, apperrors.ErrEmptyMedication)
		return
	}
	med := &pkg.Medication{
		UserID:       user.ID,
		Name:         body.Name,
		Dosage:       body.Dosage,
		Frequency:    body.Frequency,
		Times:        body.Times,
		StartDate:    body.StartDate,
		EndDate:      body.EndDate,
		Instructions: body.Instructions,
		Active:       true,
	}
	if err := s.Store.CreateMedication(ctx, med); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, med)
}

func (s *Server) handleListMedications(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	meds, err := s.Store.ListActiveMedications(ctx, user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medications": meds})
}

func (s *Server) handleDeactivateMedication(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid medication id", http.StatusBadRequest)
		return
	}
	if err := s.Store.DeactivateMedication(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleCreateSymptomLog(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body struct {
		Symptoms        string   `json:"symptoms"`
		Severity        string   `json:"severity"`
		Analysis        string   `json:"analysis"`
		Recommendations []string `json:"recommendations"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Symptoms) == "" {
		s.writeError(w, apperrors.ErrEmptySymptoms)
		return
	}
	log := &pkg.SymptomLog{
		UserID:          user.ID,
		Symptoms:        body.Symptoms,
		Severity:        body.Severity,
		Analysis:        body.Analysis,
		Recommendations: body.Recommendations,
	}
	if err := s.Store.CreateSymptomLog(ctx, log); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *Server) handleListSymptomLogs(w http.ResponseWriter, r *http.Request, phone string) {
	ctx := r.Context()
	user, err := s.Store.GetUserByPhone(ctx, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.Store.ListSymptomLogs(ctx, user.ID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symptom_logs": logs})
}

// writeError maps the app error taxonomy onto HTTP statuses: invalid
// payloads are final (400), missing entities are final (404), transient
// storage failures invite a retry (503).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeAlreadyExists:
		status = http.StatusConflict
	case apperrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.Logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"code":  string(apperrors.CodeOf(err)),
		"error": err.Error(),
	})
}

// twimlResponse is the message envelope the transport provider expects in
// webhook responses. An empty envelope acknowledges without replying.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	data, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, xml.Header+string(data))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20)) // 1MB max
	return dec.Decode(v)
}
