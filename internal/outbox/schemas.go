package outbox

const activityMarkedSchema = `{
  "type": "object",
  "title": "ActivityMarked",
  "properties": {
    "user_id": {"type": "string"},
    "group_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "activity_type": {"type": "string"},
    "replaced": {"type": "boolean"},
    "marked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "group_id", "date", "activity_type", "replaced", "marked_at"],
  "additionalProperties": false
}`

const streakUpdatedSchema = `{
  "type": "object",
  "title": "StreakUpdated",
  "properties": {
    "user_id": {"type": "string"},
    "group_id": {"type": "string"},
    "current_streak": {"type": "integer", "minimum": 0},
    "longest_streak": {"type": "integer", "minimum": 0},
    "last_active_date": {"type": "string", "format": "date"},
    "version": {"type": "integer"},
    "path": {"type": "string", "enum": ["first", "extend", "repeat", "rescan"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "group_id", "current_streak", "longest_streak", "version", "path", "occurred_at"],
  "additionalProperties": false
}`
