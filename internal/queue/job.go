// Copyright 2025 James Ross
package queue

import (
	"encoding/json"
	"time"
)

// Job is the payload carried on the Redis list: everything a worker needs to
// drive one run of the deduplication pipeline without a prior store lookup.
type Job struct {
	ID           string `json:"id"`
	FileID       int64  `json:"file_id"`
	FileName     string `json:"file_name"`
	ObjectKey    string `json:"object_key"`
	Priority     string `json:"priority"`
	Retries      int    `json:"retries"`
	CreationTime string `json:"creation_time"`
}

func NewJob(id string, fileID int64, fileName, objectKey, priority string) Job {
	return Job{
		ID:           id,
		FileID:       fileID,
		FileName:     fileName,
		ObjectKey:    objectKey,
		Priority:     priority,
		Retries:      0,
		CreationTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (j Job) Marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalJob(s string) (Job, error) {
	var j Job
	err := json.Unmarshal([]byte(s), &j)
	return j, err
}
