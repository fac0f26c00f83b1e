package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// CloudTasksDispatcher enqueues reconciliation triggers onto a real Cloud
// Tasks queue, which push-delivers them to the reconciliation worker's
// HTTP target. This is the production realization of taskqueue.Queue for
// multi-instance deployments, where an in-process channel would not be
// shared across replicas.
type CloudTasksDispatcher struct {
	client     *cloudtasks.Client
	queuePath  string
	targetURL  string
}

// NewCloudTasksDispatcher wraps an already-constructed Cloud Tasks client.
// queuePath is the fully-qualified queue resource name
// (projects/P/locations/L/queues/Q); targetURL is the push endpoint the
// reconciliation worker listens on.
func NewCloudTasksDispatcher(client *cloudtasks.Client, queuePath, targetURL string) *CloudTasksDispatcher {
	return &CloudTasksDispatcher{client: client, queuePath: queuePath, targetURL: targetURL}
}

// Enqueue creates a Cloud Task carrying t as its JSON body. Per spec §5,
// this dispatch must never block or fail the ingestion response: callers
// treat a returned error as DownstreamFailure and log it only.
func (d *CloudTasksDispatcher) Enqueue(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal task: %w", err)
	}

	_, err = d.client.CreateTask(ctx, &cloudtaskspb.CreateTaskRequest{
		Parent: d.queuePath,
		Task: &cloudtaskspb.Task{
			MessageType: &cloudtaskspb.Task_HttpRequest{
				HttpRequest: &cloudtaskspb.HttpRequest{
					Url:        d.targetURL,
					HttpMethod: cloudtaskspb.HttpMethod_POST,
					Body:       body,
					Headers:    map[string]string{"Content-Type": "application/json"},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("taskqueue: create cloud task: %w", err)
	}
	return nil
}
