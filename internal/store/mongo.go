package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dvsmart-go/internal/dvs"
)

const (
	countersCollection = "counters"
	legacyCompleted    = "COMPLETED"
)

// fileDoc is the files_index document. Nullable timestamps are stored as
// null rather than omitted so that $set clears them.
type fileDoc struct {
	ID                 string     `bson:"id"`
	Seq                int64      `bson:"seq"`
	SourcePath         string     `bson:"sourcePath"`
	FileName           string     `bson:"fileName"`
	Extension          string     `bson:"extension"`
	FileSize           int64      `bson:"fileSize"`
	LastModifiedAt     time.Time  `bson:"lastModifiedAt"`
	DiscoveredAt       time.Time  `bson:"discoveredAt"`
	DiscoveredByJob    int64      `bson:"discoveredByJob"`
	IndexingStatus     string     `bson:"indexingStatus"`
	IndexedAt          *time.Time `bson:"indexedAt"`
	IndexingError      string     `bson:"indexingError"`
	ReorgStatus        string     `bson:"reorgStatus"`
	DestinationPath    string     `bson:"destinationPath"`
	ReorgCompletedAt   *time.Time `bson:"reorgCompletedAt"`
	ReorgJobID         int64      `bson:"reorgJobId"`
	ReorgDurationMs    int64      `bson:"reorgDurationMs"`
	ReorgAttempts      int        `bson:"reorgAttempts"`
	ReorgError         string     `bson:"reorgError"`
	ReorgLastAttemptAt *time.Time `bson:"reorgLastAttemptAt"`
	DeletedFromSource  bool       `bson:"deletedFromSource"`
	SourceDeletionAt   *time.Time `bson:"sourceDeletionAt"`
	DeletedBy          string     `bson:"deletedBy"`
	DocumentType       string     `bson:"documentType"`
	ClientCode         string     `bson:"clientCode"`
	Year               int        `bson:"year"`
	Month              int        `bson:"month"`
	Version            int64      `bson:"version"`
}

func newFileDoc(rec *dvs.FileRecord) *fileDoc {
	return &fileDoc{
		ID:                 rec.ID,
		Seq:                rec.Seq,
		SourcePath:         rec.SourcePath,
		FileName:           rec.FileName,
		Extension:          rec.Extension,
		FileSize:           rec.FileSize,
		LastModifiedAt:     rec.LastModifiedAt,
		DiscoveredAt:       rec.DiscoveredAt,
		DiscoveredByJob:    rec.DiscoveredByJob,
		IndexingStatus:     string(rec.IndexingStatus),
		IndexedAt:          rec.IndexedAt,
		IndexingError:      rec.IndexingError,
		ReorgStatus:        string(rec.ReorgStatus),
		DestinationPath:    rec.DestinationPath,
		ReorgCompletedAt:   rec.ReorgCompletedAt,
		ReorgJobID:         rec.ReorgJobID,
		ReorgDurationMs:    rec.ReorgDurationMs,
		ReorgAttempts:      rec.ReorgAttempts,
		ReorgError:         rec.ReorgError,
		ReorgLastAttemptAt: rec.ReorgLastAttemptAt,
		DeletedFromSource:  rec.DeletedFromSource,
		SourceDeletionAt:   rec.SourceDeletionAt,
		DeletedBy:          rec.DeletedBy,
		DocumentType:       rec.DocumentType,
		ClientCode:         rec.ClientCode,
		Year:               rec.Year,
		Month:              rec.Month,
		Version:            rec.Version,
	}
}

func (d *fileDoc) toRecord() (*dvs.FileRecord, error) {
	reorg, err := dvs.ParseReorgStatus(d.ReorgStatus)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", d.ID, err)
	}
	return &dvs.FileRecord{
		ID:                 d.ID,
		Seq:                d.Seq,
		SourcePath:         d.SourcePath,
		FileName:           d.FileName,
		Extension:          d.Extension,
		FileSize:           d.FileSize,
		LastModifiedAt:     d.LastModifiedAt.UTC(),
		DiscoveredAt:       d.DiscoveredAt.UTC(),
		DiscoveredByJob:    d.DiscoveredByJob,
		IndexingStatus:     dvs.IndexingStatus(d.IndexingStatus),
		IndexedAt:          utcPtr(d.IndexedAt),
		IndexingError:      d.IndexingError,
		ReorgStatus:        reorg,
		DestinationPath:    d.DestinationPath,
		ReorgCompletedAt:   utcPtr(d.ReorgCompletedAt),
		ReorgJobID:         d.ReorgJobID,
		ReorgDurationMs:    d.ReorgDurationMs,
		ReorgAttempts:      d.ReorgAttempts,
		ReorgError:         d.ReorgError,
		ReorgLastAttemptAt: utcPtr(d.ReorgLastAttemptAt),
		DeletedFromSource:  d.DeletedFromSource,
		SourceDeletionAt:   utcPtr(d.SourceDeletionAt),
		DeletedBy:          d.DeletedBy,
		DocumentType:       d.DocumentType,
		ClientCode:         d.ClientCode,
		Year:               d.Year,
		Month:              d.Month,
		Version:            d.Version,
	}, nil
}

// jobDoc is the job_executions_audit document.
type jobDoc struct {
	AuditID        string              `bson:"auditId"`
	JobExecutionID int64               `bson:"jobExecutionId"`
	ServiceName    string              `bson:"serviceName"`
	JobName        string              `bson:"jobName"`
	Parameters     string              `bson:"parameters"`
	StartTime      time.Time           `bson:"startTime"`
	EndTime        *time.Time          `bson:"endTime"`
	Status         string              `bson:"status"`
	Counters       dvs.Counters        `bson:"counters"`
	Steps          []dvs.StepExecution `bson:"steps"`
	DurationMs     int64               `bson:"durationMs"`
	DurationHuman  string              `bson:"durationHuman"`
	FilesPerSecond float64             `bson:"filesPerSecond"`
	ErrorDetail    string              `bson:"errorDetail"`
	Version        int64               `bson:"version"`
}

func newJobDoc(job *dvs.JobExecutionRecord) *jobDoc {
	steps := job.Steps
	if steps == nil {
		steps = []dvs.StepExecution{}
	}
	return &jobDoc{
		AuditID:        job.AuditID,
		JobExecutionID: job.JobExecutionID,
		ServiceName:    job.ServiceName,
		JobName:        job.JobName,
		Parameters:     job.Parameters,
		StartTime:      job.StartTime,
		EndTime:        job.EndTime,
		Status:         string(job.Status),
		Counters:       job.Counters,
		Steps:          steps,
		DurationMs:     job.DurationMs,
		DurationHuman:  job.DurationHuman,
		FilesPerSecond: job.FilesPerSecond,
		ErrorDetail:    job.ErrorDetail,
		Version:        job.Version,
	}
}

func (d *jobDoc) toRecord() *dvs.JobExecutionRecord {
	steps := d.Steps
	if steps == nil {
		steps = []dvs.StepExecution{}
	}
	for i := range steps {
		steps[i].StartTime = steps[i].StartTime.UTC()
		steps[i].EndTime = steps[i].EndTime.UTC()
	}
	return &dvs.JobExecutionRecord{
		AuditID:        d.AuditID,
		JobExecutionID: d.JobExecutionID,
		ServiceName:    d.ServiceName,
		JobName:        d.JobName,
		Parameters:     d.Parameters,
		StartTime:      d.StartTime.UTC(),
		EndTime:        utcPtr(d.EndTime),
		Status:         dvs.JobStatus(d.Status),
		Counters:       d.Counters,
		Steps:          steps,
		DurationMs:     d.DurationMs,
		DurationHuman:  d.DurationHuman,
		FilesPerSecond: d.FilesPerSecond,
		ErrorDetail:    d.ErrorDetail,
		Version:        d.Version,
	}
}

// MongoStore implements dvs.RecordStore on MongoDB. Conditional updates
// filter on {id, version}, which MongoDB applies atomically per document.
type MongoStore struct {
	client   *mongo.Client
	files    *mongo.Collection
	jobs     *mongo.Collection
	counters *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// OpenMongo connects to uri, selects database and creates the indexes the
// lifecycle queries rely on.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = "dvsmart"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		files:    db.Collection(filesTable),
		jobs:     db.Collection(jobsTable),
		counters: db.Collection(countersCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	fileIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reorgStatus", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "indexingStatus", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "reorgStatus", Value: 1}, {Key: "deletedFromSource", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "reorgStatus", Value: 1}, {Key: "reorgLastAttemptAt", Value: 1}}},
	}
	if _, err := s.files.Indexes().CreateMany(ctx, fileIndexes); err != nil {
		return fmt.Errorf("creating %s indexes: %w", filesTable, err)
	}

	jobIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "auditId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "jobExecutionId", Value: -1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := s.jobs.Indexes().CreateMany(ctx, jobIndexes); err != nil {
		return fmt.Errorf("creating %s indexes: %w", jobsTable, err)
	}
	return nil
}

// nextSeq atomically increments the files_index sequence counter.
func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": filesTable},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating sequence number: %w", err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) InsertFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	doc := newFileDoc(rec)
	doc.Seq = seq
	doc.Version = 1

	if _, err := s.files.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("inserting file %s: %w", rec.ID, dvs.ErrDuplicate)
		}
		return fmt.Errorf("inserting file %s: %w", rec.ID, err)
	}
	rec.Seq = seq
	rec.Version = 1
	return nil
}

func (s *MongoStore) UpsertFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	existing, err := s.GetFile(ctx, rec.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		err := s.InsertFile(ctx, rec)
		if !errors.Is(err, dvs.ErrDuplicate) {
			return err
		}
	}

	doc := newFileDoc(rec)
	set := fileSetFields(doc)
	var updated fileDoc
	err = s.files.FindOneAndUpdate(ctx,
		bson.M{"id": rec.ID},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return fmt.Errorf("upserting file %s: %w", rec.ID, err)
	}
	rec.Seq = updated.Seq
	rec.Version = updated.Version
	return nil
}

// fileSetFields returns every field of doc except the store-managed id, seq
// and version, for use in $set.
func fileSetFields(doc *fileDoc) bson.M {
	return bson.M{
		"sourcePath":         doc.SourcePath,
		"fileName":           doc.FileName,
		"extension":          doc.Extension,
		"fileSize":           doc.FileSize,
		"lastModifiedAt":     doc.LastModifiedAt,
		"discoveredAt":       doc.DiscoveredAt,
		"discoveredByJob":    doc.DiscoveredByJob,
		"indexingStatus":     doc.IndexingStatus,
		"indexedAt":          doc.IndexedAt,
		"indexingError":      doc.IndexingError,
		"reorgStatus":        doc.ReorgStatus,
		"destinationPath":    doc.DestinationPath,
		"reorgCompletedAt":   doc.ReorgCompletedAt,
		"reorgJobId":         doc.ReorgJobID,
		"reorgDurationMs":    doc.ReorgDurationMs,
		"reorgAttempts":      doc.ReorgAttempts,
		"reorgError":         doc.ReorgError,
		"reorgLastAttemptAt": doc.ReorgLastAttemptAt,
		"deletedFromSource":  doc.DeletedFromSource,
		"sourceDeletionAt":   doc.SourceDeletionAt,
		"deletedBy":          doc.DeletedBy,
		"documentType":       doc.DocumentType,
		"clientCode":         doc.ClientCode,
		"year":               doc.Year,
		"month":              doc.Month,
	}
}

func (s *MongoStore) UpdateFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	set := fileSetFields(newFileDoc(rec))
	set["version"] = rec.Version + 1

	res, err := s.files.UpdateOne(ctx,
		bson.M{"id": rec.ID, "version": rec.Version},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("updating file %s: %w", rec.ID, err)
	}
	if res.MatchedCount == 0 {
		existing, err := s.GetFile(ctx, rec.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("updating file %s: %w", rec.ID, dvs.ErrNotFound)
		}
		return fmt.Errorf("updating file %s at version %d: %w", rec.ID, rec.Version, dvs.ErrConflict)
	}
	rec.Version++
	return nil
}

func (s *MongoStore) GetFile(ctx context.Context, id string) (*dvs.FileRecord, error) {
	var doc fileDoc
	err := s.files.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting file %s: %w", id, err)
	}
	return doc.toRecord()
}

func reorgStatusFilter(status dvs.ReorgStatus) any {
	if status == dvs.ReorgSuccess {
		return bson.M{"$in": bson.A{string(dvs.ReorgSuccess), legacyCompleted}}
	}
	return string(status)
}

func (s *MongoStore) FindFilesByReorgStatus(ctx context.Context, status dvs.ReorgStatus, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.findFiles(ctx, bson.M{
		"reorgStatus": reorgStatusFilter(status),
		"seq":         bson.M{"$gt": cursor},
	}, bson.D{{Key: "seq", Value: 1}}, limit)
}

func (s *MongoStore) FindFilesByIndexingStatus(ctx context.Context, status dvs.IndexingStatus, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.findFiles(ctx, bson.M{
		"indexingStatus": string(status),
		"seq":            bson.M{"$gt": cursor},
	}, bson.D{{Key: "seq", Value: 1}}, limit)
}

func (s *MongoStore) FindCleanupCandidates(ctx context.Context, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.findFiles(ctx, bson.M{
		"reorgStatus":       reorgStatusFilter(dvs.ReorgSuccess),
		"deletedFromSource": false,
		"seq":               bson.M{"$gt": cursor},
	}, bson.D{{Key: "seq", Value: 1}}, limit)
}

func (s *MongoStore) FindStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*dvs.FileRecord, error) {
	return s.findFiles(ctx, bson.M{
		"reorgStatus":        string(dvs.ReorgProcessing),
		"reorgLastAttemptAt": bson.M{"$lt": olderThan},
	}, bson.D{{Key: "reorgLastAttemptAt", Value: 1}, {Key: "seq", Value: 1}}, limit)
}

func (s *MongoStore) FindRetryableFailed(ctx context.Context, maxAttempts int, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.findFiles(ctx, bson.M{
		"reorgStatus":   string(dvs.ReorgFailed),
		"reorgAttempts": bson.M{"$lt": maxAttempts},
		"seq":           bson.M{"$gt": cursor},
	}, bson.D{{Key: "seq", Value: 1}}, limit)
}

func (s *MongoStore) findFiles(ctx context.Context, filter bson.M, sort bson.D, limit int) ([]*dvs.FileRecord, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.files.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}
	var docs []fileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding files: %w", err)
	}

	result := make([]*dvs.FileRecord, 0, len(docs))
	for i := range docs {
		rec, err := docs[i].toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *MongoStore) CountFilesByReorgStatus(ctx context.Context) (map[dvs.ReorgStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$reorgStatus"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.files.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	var groups []struct {
		Status string `bson:"_id"`
		N      int64  `bson:"n"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decoding file counts: %w", err)
	}

	counts := make(map[dvs.ReorgStatus]int64, len(groups))
	for _, g := range groups {
		status, err := dvs.ParseReorgStatus(g.Status)
		if err != nil {
			return nil, err
		}
		counts[status] += g.N
	}
	return counts, nil
}

func (s *MongoStore) NextJobExecutionID(ctx context.Context) (int64, error) {
	var doc jobDoc
	err := s.jobs.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "jobExecutionId", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting max job execution ID: %w", err)
	}
	return doc.JobExecutionID + 1, nil
}

func (s *MongoStore) RecordJobExecution(ctx context.Context, job *dvs.JobExecutionRecord) error {
	if err := job.Counters.Validate(); err != nil {
		return fmt.Errorf("recording job %s: %w", job.AuditID, err)
	}
	doc := newJobDoc(job)
	doc.Version = 1

	if _, err := s.jobs.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("recording job %s: %w", job.AuditID, dvs.ErrDuplicate)
		}
		return fmt.Errorf("recording job %s: %w", job.AuditID, err)
	}
	job.Version = 1
	return nil
}

func (s *MongoStore) UpdateJobExecution(ctx context.Context, auditID string, patch dvs.JobPatch) error {
	for attempt := 1; ; attempt++ {
		job, err := s.GetJobExecution(ctx, auditID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrNotFound)
		}
		if job.Status.IsFinal() {
			return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrJobFinalized)
		}

		prev := job.Version
		job.Apply(patch)
		if err := job.Counters.Validate(); err != nil {
			return fmt.Errorf("updating job %s: %w", auditID, err)
		}
		doc := newJobDoc(job)
		doc.Version = prev + 1

		res, err := s.jobs.ReplaceOne(ctx, bson.M{"auditId": auditID, "version": prev}, doc)
		if err != nil {
			return fmt.Errorf("updating job %s: %w", auditID, err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
		if attempt >= 3 {
			return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrConflict)
		}
	}
}

func (s *MongoStore) GetJobExecution(ctx context.Context, auditID string) (*dvs.JobExecutionRecord, error) {
	var doc jobDoc
	err := s.jobs.FindOne(ctx, bson.M{"auditId": auditID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job %s: %w", auditID, err)
	}
	return doc.toRecord(), nil
}

func (s *MongoStore) ListJobExecutions(ctx context.Context, limit int) ([]*dvs.JobExecutionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "jobExecutionId", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.jobs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	var docs []jobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding jobs: %w", err)
	}

	result := make([]*dvs.JobExecutionRecord, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toRecord())
	}
	return result, nil
}

// CheckMigrations always succeeds: collections are schemaless and indexes
// are created on open.
func (s *MongoStore) CheckMigrations() error { return nil }

// Migrate recreates the indexes. CreateMany is idempotent.
func (s *MongoStore) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.ensureIndexes(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
