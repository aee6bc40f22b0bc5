package mcpserver

// RecordSchemaURI is the resource URI of RecordSchema.
const RecordSchemaURI = "lettamem://record-schema"

// RecordSchema describes the stored memory record format for LLM clients.
const RecordSchema = `# lettamem Record Format

Every memory is stored as one JSON document in the record directory.
File names are the sanitized topic, an underscore, the id and ".json".

## Fields

| Field        | Type              | Notes                                                  |
|--------------|-------------------|--------------------------------------------------------|
| id           | string (UUID)     | Assigned on creation. Never reused.                    |
| entry_type   | string            | Defaults to "user_memory".                             |
| topic        | string            | Defaults to "Untitled Memory". Used in the file name.  |
| domain       | string, optional  | Free-form area such as "work" or "health".             |
| timestamp    | RFC 3339 string   | UTC creation time. Listings are newest first.          |
| content      | object            | Arbitrary JSON. Plain text goes under "text".          |
| tags         | array of strings  | Exact-match filter key.                                |
| metadata     | object            | Arbitrary JSON. Filterable by key/value equality.      |

## Known entry types

Some types copy fields from content into metadata at creation:

- code_context: file_path, language, context_lines
- conversation: participants, sentiment (default "neutral"), key_topics
- project_state: project_name, branch, dependencies, open_files
- user_preference: category, scope (default "global")

## Rules

1. Records are immutable: create a new record instead of editing one.
2. Tags are matched exactly; topics are matched case-insensitively by substring.
3. Older records may use "type" or "title"; they are read as entry_type and topic.

## Example

` + "```" + `json
{
    "id": "0b7f6c2e-8f55-4a55-9d8c-3f0f2a6f1c11",
    "entry_type": "user_preference",
    "topic": "Editor",
    "timestamp": "2025-01-20T09:30:00Z",
    "content": {"text": "Prefers tabs over spaces", "category": "coding"},
    "tags": ["editor", "style"],
    "metadata": {"category": "coding", "scope": "global"}
}
` + "```" + `
`
