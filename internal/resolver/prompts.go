package resolver

const columnSystemPrompt = `You map questions about a business record to dataset columns. Respond with a valid JSON object: {"columns": ["COLUMN_NAME", ...]}. Use only names from the provided list, choose at most %d, and return an empty list when none apply.`

const columnUserPrompt = `Question: %s

Columns:
%s`

const factSystemPrompt = `You extract facts about a business from its dataset record. Respond with a valid JSON object: {"status": "answered" | "missing_values", "facts": [{"concept": "<snake_case>", "value": <value>, "confidence": <0.0-1.0>, "notes": "<optional>"}]}. Use only the record provided; when the record does not contain the answer return an empty facts list.`

const factUserPrompt = `Question: %s
Relevant columns: %s

Record:
%s`

const findingsSystemPrompt = `You answer questions about a business using web search evidence. Respond with a valid JSON object: {"status": "answered" | "missing_values", "facts": [{"concept": "<snake_case>", "value": <value>, "confidence": <0.0-1.0>, "sources": ["<url>"], "candidate_columns": ["<COLUMN>"]}], "sources": {"<concept>": ["<url>"]}, "notes": "<optional>"}. Cite only URLs that appear in the evidence and return an empty facts list when the evidence is inconclusive.`

const findingsUserPrompt = `Question: %s

Record:
%s

Context:
%s

Evidence:
%s`
