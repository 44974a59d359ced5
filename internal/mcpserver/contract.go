package mcpserver

// NotesContract describes the mynotes data model that LLM consumers should
// follow when calling the note tools.
const NotesContract = `# mynotes Data Model

## Users

A user is identified by a lowercase email address. Emails are matched
case-insensitively; "Me@Example.com" and "me@example.com" are the same user.

## Notes

` + "```" + `json
{
  "id": 7,                        // assigned by the store, never reused
  "user_id": 3,                   // owner; must be an existing user
  "text": "Buy milk",             // free-form UTF-8 text, may be empty
  "is_synced_with_cloud": false   // reset to false on every update
}
` + "```" + `

## Rules

1. **Owners must exist.** ` + "`" + `create_note` + "`" + ` fails unless the email belongs to a
   stored user. There is no tool to create users; they are created on log-in.
2. **Updates replace the text.** There is no patching; send the full new text.
3. **Every update clears the sync flag.** A note becomes unsynced until the cloud
   sync marks it again.
4. **Ids are integers.** Pass them as numbers, not strings.
5. **Deletion is final.** ` + "`" + `delete_all_notes` + "`" + ` removes the notes of every user.
`
