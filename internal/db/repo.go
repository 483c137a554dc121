package db

import (
	"context"
	"database/sql"

	"healthbot/pkg"
	apperrors "healthbot/pkg/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Repository wraps database operations for users, messages and the
// clinical side tables. A single postgres database backs all of them.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// Ping verifies the backing store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.Ping"))
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// CreateUser inserts a new user row. The phone number carries a unique
// constraint; a concurrent insert for the same number surfaces as an
// ALREADY_EXISTS error so the caller can fall back to the winner's row.
func (r *Repository) CreateUser(ctx context.Context, u *pkg.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO users (id, phone_number, name, preferred_language, notifications_enabled, is_active, last_interaction_at)
         VALUES ($1, $2, $3, $4, $5, $6, now())
         RETURNING created_at, updated_at, last_interaction_at`,
		u.ID, u.PhoneNumber, u.Name, u.PreferredLanguage, u.NotificationsEnabled, u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt, &u.LastInteractionAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicateContact(errors.Wrap(err, "store.CreateUser.Insert"))
		}
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.CreateUser.Insert"))
	}
	return nil
}

// GetUserByPhone retrieves a user by contact address.
func (r *Repository) GetUserByPhone(ctx context.Context, phone string) (*pkg.User, error) {
	var u pkg.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, phone_number, name, preferred_language, notifications_enabled, is_active,
                created_at, updated_at, last_interaction_at
         FROM users
         WHERE phone_number = $1`,
		phone,
	).Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.PreferredLanguage, &u.NotificationsEnabled,
		&u.Active, &u.CreatedAt, &u.UpdatedAt, &u.LastInteractionAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.GetUserByPhone.Scan"))
	}
	return &u, nil
}

// TouchUser records an interaction: it bumps last_interaction_at and
// updated_at without touching anything else.
func (r *Repository) TouchUser(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET last_interaction_at = now(), updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.TouchUser.Update"))
	}
	return nil
}

// DeactivateUser soft-deactivates a user. Rows are never hard-deleted;
// the user's messages are retained for history.
func (r *Repository) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.DeactivateUser.Update"))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// CreateMessage inserts a message row. delivery_id carries a unique
// constraint; inserting the same delivery twice surfaces as ALREADY_EXISTS
// so the intake pipeline can short-circuit to its duplicate path.
func (r *Repository) CreateMessage(ctx context.Context, m *pkg.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	media := m.MediaURLs
	if media == nil {
		media = []string{}
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO messages (id, user_id, direction, body, media_urls, intent, delivery_id)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING created_at`,
		m.ID, m.UserID, m.Direction, m.Body, pq.Array(media), m.Intent, m.DeliveryID,
	).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicateDelivery(errors.Wrap(err, "store.CreateMessage.Insert"))
		}
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.CreateMessage.Insert"))
	}
	return nil
}

// GetMessageByDeliveryID retrieves the message recorded for an external
// delivery identifier, if any. This is the deduplication lookup.
func (r *Repository) GetMessageByDeliveryID(ctx context.Context, deliveryID string) (*pkg.Message, error) {
	var m pkg.Message
	var media pq.StringArray
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, direction, body, media_urls, intent, delivery_id, created_at
         FROM messages
         WHERE delivery_id = $1`,
		deliveryID,
	).Scan(&m.ID, &m.UserID, &m.Direction, &m.Body, &media, &m.Intent, &m.DeliveryID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.GetMessageByDeliveryID.Scan"))
	}
	m.MediaURLs = media
	return &m, nil
}

// ListMessages returns a user's messages ordered by creation time, oldest
// first. Timestamps, not insertion order, define the conversation order.
func (r *Repository) ListMessages(ctx context.Context, userID uuid.UUID, limit int) ([]pkg.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, direction, body, media_urls, intent, delivery_id, created_at
         FROM messages
         WHERE user_id = $1
         ORDER BY created_at ASC
         LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListMessages.Query"))
	}
	defer rows.Close()
	var msgs []pkg.Message
	for rows.Next() {
		var m pkg.Message
		var media pq.StringArray
		if err := rows.Scan(&m.ID, &m.UserID, &m.Direction, &m.Body, &media, &m.Intent, &m.DeliveryID, &m.CreatedAt); err != nil {
			return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListMessages.Scan"))
		}
		m.MediaURLs = media
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListMessages.Rows"))
	}
	return msgs, nil
}

// SetMessageIntent records the classified intent for a message. The write
// is idempotent: re-applying the same intent is a no-op.
func (r *Repository) SetMessageIntent(ctx context.Context, messageID uuid.UUID, intent string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET intent = $2 WHERE id = $1`,
		messageID, intent,
	)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.SetMessageIntent.Update"))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrMessageNotFound
	}
	return nil
}

// CreateAppointment schedules a visit for a user.
func (r *Repository) CreateAppointment(ctx context.Context, a *pkg.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = pkg.AppointmentScheduled
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO appointments (id, user_id, appointment_date, appointment_type, doctor_name, clinic_name, reason, notes, status, reminder_sent)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
         RETURNING created_at`,
		a.ID, a.UserID, a.AppointmentDate, a.AppointmentType, a.DoctorName, a.ClinicName,
		a.Reason, a.Notes, a.Status, a.ReminderSent,
	).Scan(&a.CreatedAt)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.CreateAppointment.Insert"))
	}
	return nil
}

// ListUpcomingAppointments returns a user's scheduled appointments with a
// date at or after now, soonest first.
func (r *Repository) ListUpcomingAppointments(ctx context.Context, userID uuid.UUID) ([]pkg.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, appointment_date, appointment_type, doctor_name, clinic_name, reason, notes, status, reminder_sent, created_at
         FROM appointments
         WHERE user_id = $1 AND status = 'scheduled' AND appointment_date >= now()
         ORDER BY appointment_date ASC`,
		userID,
	)
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListUpcomingAppointments.Query"))
	}
	defer rows.Close()
	var appts []pkg.Appointment
	for rows.Next() {
		var a pkg.Appointment
		if err := rows.Scan(&a.ID, &a.UserID, &a.AppointmentDate, &a.AppointmentType, &a.DoctorName,
			&a.ClinicName, &a.Reason, &a.Notes, &a.Status, &a.ReminderSent, &a.CreatedAt); err != nil {
			return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListUpcomingAppointments.Scan"))
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// UpdateAppointmentStatus moves an appointment through its lifecycle
// (scheduled, completed, cancelled).
func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status pkg.AppointmentStatus) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE appointments SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.UpdateAppointmentStatus.Update"))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("appointment not found")
	}
	return nil
}

// MarkReminderSent flags an appointment's reminder as delivered so the
// reminder job does not send it twice.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE appointments SET reminder_sent = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.MarkReminderSent.Update"))
	}
	return nil
}

// CreateMedication records a medication for a user.
func (r *Repository) CreateMedication(ctx context.Context, m *pkg.Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	times := m.Times
	if times == nil {
		times = []string{}
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO medications (id, user_id, name, dosage, frequency, times, start_date, end_date, instructions, is_active)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
         RETURNING created_at`,
		m.ID, m.UserID, m.Name, m.Dosage, m.Frequency, pq.Array(times),
		m.StartDate, m.EndDate, m.Instructions, m.Active,
	).Scan(&m.CreatedAt)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.CreateMedication.Insert"))
	}
	return nil
}

// ListActiveMedications returns a user's active medications, most recent
// first.
func (r *Repository) ListActiveMedications(ctx context.Context, userID uuid.UUID) ([]pkg.Medication, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, name, dosage, frequency, times, start_date, end_date, instructions, is_active, created_at
         FROM medications
         WHERE user_id = $1 AND is_active
         ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListActiveMedications.Query"))
	}
	defer rows.Close()
	var meds []pkg.Medication
	for rows.Next() {
		var m pkg.Medication
		var times pq.StringArray
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &times,
			&m.StartDate, &m.EndDate, &m.Instructions, &m.Active, &m.CreatedAt); err != nil {
			return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListActiveMedications.Scan"))
		}
		m.Times = times
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// DeactivateMedication marks a medication as no longer taken.
func (r *Repository) DeactivateMedication(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE medications SET is_active = FALSE WHERE id = $1`,
		id,
	)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.DeactivateMedication.Update"))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("medication not found")
	}
	return nil
}

// CreateSymptomLog records a symptom report for a user.
func (r *Repository) CreateSymptomLog(ctx context.Context, s *pkg.SymptomLog) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	recs := s.Recommendations
	if recs == nil {
		recs = []string{}
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO symptom_logs (id, user_id, symptoms, severity, analysis, recommendations)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING created_at`,
		s.ID, s.UserID, s.Symptoms, s.Severity, s.Analysis, pq.Array(recs),
	).Scan(&s.CreatedAt)
	if err != nil {
		return apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.CreateSymptomLog.Insert"))
	}
	return nil
}

// ListSymptomLogs returns a user's symptom reports, most recent first.
func (r *Repository) ListSymptomLogs(ctx context.Context, userID uuid.UUID, limit int) ([]pkg.SymptomLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, symptoms, severity, analysis, recommendations, created_at
         FROM symptom_logs
         WHERE user_id = $1
         ORDER BY created_at DESC
         LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListSymptomLogs.Query"))
	}
	defer rows.Close()
	var logs []pkg.SymptomLog
	for rows.Next() {
		var s pkg.SymptomLog
		var recs pq.StringArray
		if err := rows.Scan(&s.ID, &s.UserID, &s.Symptoms, &s.Severity, &s.Analysis, &recs, &s.CreatedAt); err != nil {
			return nil, apperrors.ErrStorageUnavailable(errors.Wrap(err, "store.ListSymptomLogs.Scan"))
		}
		s.Recommendations = recs
		logs = append(logs, s)
	}
	return logs, rows.Err()
}
