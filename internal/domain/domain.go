package domain

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	ActionCreated  = "created"
	ActionEdited   = "edited"
	ActionDeleted  = "deleted"
	ActionRestored = "restored"
)

const (
	ReportSubmitted = "submitted"
	ReportApproved  = "approved"
	ReportRejected  = "rejected"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Collection names used in the document store.
const (
	CollectionTimeRecords   = "timeRecords"
	CollectionWorkItems     = "workItems"
	CollectionStatuses      = "workItemStatuses"
	CollectionReports       = "monthlyReports"
	CollectionHolidays      = "holidays"
	CollectionAdminSettings = "adminSettings"
	CollectionUsers         = "users"
	CollectionDeviceTokens  = "deviceTokens"
)

type TimeRecord struct {
	ID             string  `json:"id"`
	UserID         string  `json:"userId"`
	Date           string  `json:"date" format:"date"`
	Hours          float64 `json:"hours"`
	Project        string  `json:"project,omitempty"`
	TaskID         string  `json:"taskId,omitempty"`
	TaskTypeID     string  `json:"taskTypeId,omitempty"`
	JiraIssue      string  `json:"jiraIssue,omitempty"`
	Description    string  `json:"description"`
	Deleted        bool    `json:"deleted"`
	ActionType     string  `json:"actionType" enum:"created,edited,deleted,restored"`
	CreatedBy      string  `json:"createdBy"`
	CreatedByRole  string  `json:"createdByRole"`
	ModifiedBy     string  `json:"modifiedBy,omitempty"`
	ModifiedByRole string  `json:"modifiedByRole,omitempty"`
	DeletedBy      string  `json:"deletedBy,omitempty"`
	DeletedByRole  string  `json:"deletedByRole,omitempty"`
	CreatedAt      string  `json:"createdAt" format:"date-time"`
	UpdatedAt      string  `json:"updatedAt,omitempty" format:"date-time"`
}

type WorkItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status"`
	Priority      string   `json:"priority" enum:"low,medium,high"`
	ProjectID     string   `json:"projectId,omitempty"`
	AssignedTo    string   `json:"assignedTo,omitempty"`
	EstimateHours *float64 `json:"estimateHours,omitempty"`
	ActualHours   *float64 `json:"actualHours,omitempty"`
	Active        bool     `json:"active"`
	CreatedAt     string   `json:"createdAt" format:"date-time"`
	CreatedBy     string   `json:"createdBy"`
	UpdatedAt     string   `json:"updatedAt,omitempty" format:"date-time"`
	UpdatedBy     string   `json:"updatedBy,omitempty"`
}

type Status struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Label  string `json:"label"`
	Order  int    `json:"order"`
	Active bool   `json:"active"`
}

type MonthlyReport struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	UserName    string  `json:"userName"`
	Month       string  `json:"month"`
	TotalHours  float64 `json:"totalHours"`
	Status      string  `json:"status" enum:"submitted,approved,rejected"`
	AdminNote   string  `json:"adminNote,omitempty"`
	SubmittedAt string  `json:"submittedAt" format:"date-time"`
	ReviewedAt  string  `json:"reviewedAt,omitempty" format:"date-time"`
	ReviewedBy  string  `json:"reviewedBy,omitempty"`
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role" enum:"admin,user"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"createdAt" format:"date-time"`
}

// AdminSettings holds the feature toggles stored in the adminSettings singleton.
type AdminSettings struct {
	InactivityAlerts  bool   `json:"inactivityAlerts"`
	PushNotifications bool   `json:"pushNotifications"`
	JiraIntegration   bool   `json:"jiraIntegration"`
	KanbanEnabled     bool   `json:"kanbanEnabled"`
	UpdatedAt         string `json:"updatedAt,omitempty" format:"date-time"`
	UpdatedBy         string `json:"updatedBy,omitempty"`
}

type Holidays struct {
	Year int      `json:"year"`
	Days []string `json:"days"`
}

type DeviceToken struct {
	UserID    string `json:"userId"`
	Token     string `json:"token,omitempty"`
	Granted   bool   `json:"granted"`
	UpdatedAt string `json:"updatedAt" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Collection string `json:"collection"`
	DocID      string `json:"docId,omitempty"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payload"`
}
