package server

import "tsproxy/internal/domain"

// EntryRequest is the body of bulk and update calls.
type EntryRequest struct {
	TaskID    int64  `json:"taskId" minimum:"1" example:"12345"`
	Activity  string `json:"activity" example:"Backend development"`
	StartDate string `json:"startDate" example:"2023-06-05"`
	EndDate   string `json:"endDate,omitempty" example:"2023-06-09"`
}

func (r EntryRequest) task() domain.TaskDescriptor {
	return domain.TaskDescriptor{TaskID: r.TaskID, Activity: r.Activity}
}

// Envelope wraps every successful response.
type Envelope struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

type dataOutput struct {
	Body Envelope
}

func success(data any) *dataOutput {
	return &dataOutput{Body: Envelope{Status: "success", Data: data}}
}
