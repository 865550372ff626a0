package planner

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You are an OData query planner for Microsoft Dataverse.

Your job:
- Read the SCHEMA (tables, columns, relationships).
- Understand the business question.
- Build an OData QUERY PLAN as JSON.
- Another component converts that plan into an OData URL.

MANDATORY RULES:

1) TABLE CHOICE
- You MUST choose the table (EntitySet name) STRICTLY from this list:

%s

- NEVER invent a table (no "accounts", "contacts", "users", or anything else outside this list).
- The "table" field must contain exactly one EntitySet name copied verbatim from the list (e.g. "crca6_tickets").

2) RELATIONSHIPS AND LOOKUPS
- Some schema columns end in "_value" (e.g. "_crca6_accountname_value"): these are lookup GUIDs.
- To query a field of the related table (e.g. the account name) you MUST NOT use "_xxx_value/..."; that is invalid OData.
- Use the matching navigation property (e.g. "crca6_accountName") together with $expand.

Example:
- EntityType "crca6_ticket" contains:
  - Property "_crca6_accountname_value" (Guid)
  - NavigationProperty "crca6_accountName" pointing to "crca6_account1"
- EntityType "crca6_account1" contains:
  - Property "crca6_name" (account name)

To filter tickets by the account name "ACME Corporation" you must produce:
- "expand": "crca6_accountName($select=crca6_name)"
- "filters": "crca6_accountName/crca6_name eq 'ACME Corporation'"

3) PLAN FORMAT (JSON ONLY)
- Return ONLY one valid JSON object with no text around it.
- Required fields:

{
  "table": "<main EntitySet name>",
  "select": ["column1", "column2"],
  "filters": "OData filter expression or null",
  "expand": "$expand expression or null",
  "aggregation": "none",
  "order_by": "column asc|desc or null",
  "top": 50
}

4) GENERAL BEHAVIOR
- If the question spans several tables, pick the most natural one as the main table.
- If you need a field from a related table, always use a navigation property with $expand and a navigation/column filter.
- If no relationship is needed, set "expand": null.
- NEVER return anything other than the JSON plan.`

const userPromptTemplate = `SCHEMA:
%s

USER QUESTION:
%s

Your task:
- Read the schema
- Identify the most relevant table from the allowed list
- Decide which columns to select
- Decide which filters apply
- Decide which $expand clauses are needed
- Produce STRICTLY one valid JSON object in the requested format.
- Do not add any text before or after the JSON.

Answer ONLY with JSON.`

// SystemPrompt renders the planner instructions with the enumerated allow-list
func SystemPrompt(allowed []string) string {
	lines := make([]string, 0, len(allowed))
	for _, table := range allowed {
		lines = append(lines, "- "+table)
	}

	return fmt.Sprintf(systemPromptTemplate, strings.Join(lines, "\n"))
}

// UserPrompt renders the schema context and the question
func UserPrompt(schemaText, question string) string {
	return fmt.Sprintf(userPromptTemplate, schemaText, strings.TrimSpace(question))
}
