package services

import (
	"time"

	"zkteco-hub/database"
	"zkteco-hub/metrics"
	"zkteco-hub/models"
	"zkteco-hub/protocol"

	"github.com/rs/zerolog"
)

// IngestResult summarizes one upload. It is only used for logging: the
// terminal always receives a bare acknowledgement.
type IngestResult struct {
	Table      protocol.Table
	Stored     int
	Duplicates int
	Rejected   int
}

// IngestService turns uploaded log tables into stored records.
type IngestService struct {
	db        *database.Database
	sessions  *SessionService
	forwarder EventSubmitter
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewIngestService(db *database.Database, sessions *SessionService, forwarder EventSubmitter,
	publisher EventPublisher, logger zerolog.Logger) *IngestService {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &IngestService{
		db:        db,
		sessions:  sessions,
		forwarder: forwarder,
		publisher: publisher,
		logger:    logger.With().Str("component", "ingest_service").Logger(),
		now:       time.Now,
	}
}

// Ingest processes one POST /iclock/cdata upload and then stores stamp as
// the table's watermark. Unknown tables are ignored.
func (is *IngestService) Ingest(serial, table, stamp, body string) IngestResult {
	t, ok := protocol.ParseTable(table)
	if !ok {
		is.logger.Warn().Str("serial", serial).Str("table", table).Msg("Upload for unknown table ignored")
		return IngestResult{Table: protocol.Table(table)}
	}

	var res IngestResult
	switch t {
	case protocol.TableAttLog:
		res = is.ingestAttendance(serial, body)
	case protocol.TableOperLog:
		res = is.ingestOperations(serial, body)
	case protocol.TableAttPhoto:
		res = IngestResult{Table: t}
		is.logger.Debug().Str("serial", serial).Int("bytes", len(body)).Msg("Photo upload received (not stored)")
	}

	is.sessions.OnUploadStamp(serial, t, stamp)

	is.logger.Info().
		Str("serial", serial).
		Str("table", string(t)).
		Str("stamp", stamp).
		Int("stored", res.Stored).
		Int("duplicates", res.Duplicates).
		Int("rejected", res.Rejected).
		Msg("Upload processed")
	return res
}

func (is *IngestService) ingestAttendance(serial, body string) IngestResult {
	res := IngestResult{Table: protocol.TableAttLog}
	records, rejected := protocol.ParseAttendance(body)

	for _, le := range rejected {
		is.logger.Warn().Str("serial", serial).Str("line", le.Line).Str("reason", le.Reason).Msg("Attendance line discarded")
	}
	res.Rejected = len(rejected)
	metrics.IngestedLines.WithLabelValues(string(protocol.TableAttLog), "rejected").Add(float64(len(rejected)))

	for _, rec := range records {
		event := &models.AttendanceEvent{
			DeviceSerial: serial,
			PIN:          rec.PIN,
			DeviceTime:   rec.Time,
			Status:       rec.Status,
			Verify:       rec.Verify,
			WorkCode:     rec.WorkCode,
			RawData:      rec.Raw,
			ReceivedAt:   is.now().UTC(),
		}
		inserted, err := is.db.AttendanceRepo.CreateIfAbsent(is.db.DB, event)
		if err != nil {
			res.Rejected++
			metrics.IngestedLines.WithLabelValues(string(protocol.TableAttLog), "rejected").Inc()
			is.logger.Error().Err(err).Str("serial", serial).Str("line", rec.Raw).Msg("Failed to store attendance line")
			continue
		}
		if !inserted {
			res.Duplicates++
			metrics.IngestedLines.WithLabelValues(string(protocol.TableAttLog), "duplicate").Inc()
			continue
		}

		res.Stored++
		metrics.IngestedLines.WithLabelValues(string(protocol.TableAttLog), "stored").Inc()
		is.publisher.PublishAttendance(event)
		if is.forwarder != nil && !is.forwarder.Submit(*event) {
			is.logger.Warn().Uint("event_id", event.ID).Msg("Forwarding queue full, event left for retry")
		}
	}
	return res
}

func (is *IngestService) ingestOperations(serial, body string) IngestResult {
	res := IngestResult{Table: protocol.TableOperLog}
	lines := protocol.SplitLines(body)
	if len(lines) == 0 {
		return res
	}

	logs := make([]models.OperationLog, len(lines))
	now := is.now().UTC()
	for i, ln := range lines {
		logs[i] = models.OperationLog{
			DeviceSerial: serial,
			LogType:      string(protocol.ClassifyOperation(ln)),
			Content:      ln,
			ReceivedAt:   now,
		}
	}
	if err := is.db.OperationLogRepo.CreateLogs(is.db.DB, logs); err != nil {
		res.Rejected = len(lines)
		metrics.IngestedLines.WithLabelValues(string(protocol.TableOperLog), "rejected").Add(float64(len(lines)))
		is.logger.Error().Err(err).Str("serial", serial).Msg("Failed to store operation logs")
		return res
	}
	res.Stored = len(lines)
	metrics.IngestedLines.WithLabelValues(string(protocol.TableOperLog), "stored").Add(float64(len(lines)))
	return res
}

// ListOperationLogs returns stored OPERLOG lines, newest first.
func (is *IngestService) ListOperationLogs(serial string, limit int) ([]models.OperationLog, error) {
	return is.db.OperationLogRepo.ListLogs(serial, limit)
}

// ListEvents returns stored attendance events matching q, newest first.
func (is *IngestService) ListEvents(q models.EventQuery) ([]models.AttendanceEvent, error) {
	return is.db.AttendanceRepo.ListEvents(q)
}
