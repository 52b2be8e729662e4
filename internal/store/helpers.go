package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSON encodes v for a JSON/TEXT column; nil-able values encode to NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal column value: %w", err)
	}
	return string(raw), nil
}

// unmarshalJSON decodes a nullable JSON/TEXT column into out.
func unmarshalJSON(raw sql.NullString, out interface{}) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), out); err != nil {
		return fmt.Errorf("unmarshal column value: %w", err)
	}
	return nil
}

// loadDefinitionsFromDB assembles questionnaire definitions from the
// questionnaires, questions, and branch_rules tables. The queries carry no
// placeholders, so SQLite and Postgres share this implementation.
func loadDefinitionsFromDB(ctx context.Context, db *sql.DB) ([]models.QuestionnaireDefinition, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, start_question_id FROM questionnaires ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query questionnaires: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]*models.QuestionnaireDefinition)
	var order []string
	for rows.Next() {
		var def models.QuestionnaireDefinition
		var start sql.NullInt64
		if err := rows.Scan(&def.Name, &start); err != nil {
			return nil, fmt.Errorf("scan questionnaire row: %w", err)
		}
		if start.Valid {
			id := models.QuestionID(start.Int64)
			def.StartQuestionID = &id
		}
		byName[def.Name] = &def
		order = append(order, def.Name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questionnaire rows: %w", err)
	}

	qRows, err := db.QueryContext(ctx, `
		SELECT id, questionnaire_name, text, kind, options, role, depends_on_role
		FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer qRows.Close()

	questionOwner := make(map[models.QuestionID]string)
	for qRows.Next() {
		var (
			q         models.QuestionDefinition
			owner     string
			options   sql.NullString
			role, dep sql.NullString
		)
		if err := qRows.Scan(&q.ID, &owner, &q.Text, &q.Kind, &options, &role, &dep); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if err := unmarshalJSON(options, &q.Options); err != nil {
			return nil, err
		}
		q.Role = models.QuestionRole(role.String)
		q.DependsOnRole = models.QuestionRole(dep.String)
		def, ok := byName[owner]
		if !ok {
			return nil, fmt.Errorf("question %d references unknown questionnaire %q", q.ID, owner)
		}
		def.Questions = append(def.Questions, q)
		questionOwner[q.ID] = owner
	}
	if err := qRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows: %w", err)
	}

	rRows, err := db.QueryContext(ctx, `
		SELECT question_id, answer, next_question_id
		FROM branch_rules ORDER BY question_id, answer`)
	if err != nil {
		return nil, fmt.Errorf("query branch rules: %w", err)
	}
	defer rRows.Close()

	for rRows.Next() {
		var (
			rule models.BranchRuleDefinition
			next sql.NullInt64
		)
		if err := rRows.Scan(&rule.QuestionID, &rule.Answer, &next); err != nil {
			return nil, fmt.Errorf("scan branch rule row: %w", err)
		}
		if next.Valid {
			id := models.QuestionID(next.Int64)
			rule.NextQuestionID = &id
		}
		owner, ok := questionOwner[rule.QuestionID]
		if !ok {
			return nil, fmt.Errorf("branch rule references unknown question %d", rule.QuestionID)
		}
		byName[owner].Rules = append(byName[owner].Rules, rule)
	}
	if err := rRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branch rule rows: %w", err)
	}

	defs := make([]models.QuestionnaireDefinition, 0, len(order))
	for _, name := range order {
		defs = append(defs, *byName[name])
	}
	return defs, nil
}

// scanTariff reads one tariff row with its JSON columns.
func scanTariff(rows *sql.Rows) (models.Tariff, error) {
	var (
		t            models.Tariff
		description  sql.NullString
		quests       sql.NullString
		genderQuests sql.NullString
	)
	if err := rows.Scan(&t.Name, &description, &t.Price, &quests, &genderQuests); err != nil {
		return t, fmt.Errorf("scan tariff row: %w", err)
	}
	t.Description = description.String
	if err := unmarshalJSON(quests, &t.Questionnaires); err != nil {
		return t, err
	}
	if err := unmarshalJSON(genderQuests, &t.GenderQuestionnaires); err != nil {
		return t, err
	}
	return t, nil
}
