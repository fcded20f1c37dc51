package attendance

import (
	"context"
	"strings"

	"hourlog/internal/model"
)

// SubjectInput carries the editable subject fields. All are required.
type SubjectInput struct {
	Name          string `json:"name"`
	Program       string `json:"program"`
	Term          string `json:"term"`
	AccountNumber string `json:"account_number"`
	Occupation    string `json:"occupation"`
	Contact       string `json:"contact"`
}

func (in SubjectInput) normalize() SubjectInput {
	return SubjectInput{
		Name:          strings.TrimSpace(in.Name),
		Program:       strings.TrimSpace(in.Program),
		Term:          strings.TrimSpace(in.Term),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		Occupation:    strings.TrimSpace(in.Occupation),
		Contact:       strings.TrimSpace(in.Contact),
	}
}

func (in SubjectInput) validate() error {
	fields := []struct{ name, value string }{
		{"name", in.Name},
		{"program", in.Program},
		{"term", in.Term},
		{"account_number", in.AccountNumber},
		{"occupation", in.Occupation},
		{"contact", in.Contact},
	}
	for _, f := range fields {
		if f.value == "" {
			return required(f.name)
		}
	}
	return nil
}

func (in SubjectInput) apply(s *model.Subject) {
	s.Name = in.Name
	s.Program = in.Program
	s.Term = in.Term
	s.AccountNumber = in.AccountNumber
	s.Occupation = in.Occupation
	s.Contact = in.Contact
}

// accountTaken reports whether another subject already holds the number.
func accountTaken(subjects []model.Subject, account, exceptID string) bool {
	for _, s := range subjects {
		if s.ID != exceptID && s.AccountNumber == account {
			return true
		}
	}
	return false
}

// RegisterSubject adds an active subject.
func (s *Service) RegisterSubject(ctx context.Context, in SubjectInput) (subj model.Subject, err error) {
	defer func() { s.finish(ctx, "register_subject", err, EventSubjectChanged, subj.ID, "") }()

	in = in.normalize()
	if err := in.validate(); err != nil {
		return model.Subject{}, err
	}
	err = s.repo.Update(ctx, func(b *Batch) error {
		subjects, err := b.Subjects()
		if err != nil {
			return err
		}
		if accountTaken(subjects, in.AccountNumber, "") {
			return ErrDuplicateAccountNumber
		}
		id, err := s.ids.Next(subjectIDTaken(subjects))
		if err != nil {
			return err
		}
		subj = model.Subject{ID: id, Active: true}
		in.apply(&subj)
		b.SetSubjects(append(subjects, subj))
		return nil
	})
	if err != nil {
		return model.Subject{}, err
	}
	return subj, nil
}

// EditSubject replaces the subject's fields. active, when non-nil, also
// updates the active flag.
func (s *Service) EditSubject(ctx context.Context, id string, in SubjectInput, active *bool) (subj model.Subject, err error) {
	defer func() { s.finish(ctx, "edit_subject", err, EventSubjectChanged, id, "") }()

	id = strings.TrimSpace(id)
	if id == "" {
		return model.Subject{}, required("subject_id")
	}
	in = in.normalize()
	if err := in.validate(); err != nil {
		return model.Subject{}, err
	}
	err = s.repo.Update(ctx, func(b *Batch) error {
		subjects, err := b.Subjects()
		if err != nil {
			return err
		}
		i := indexSubject(subjects, id)
		if i < 0 {
			return ErrSubjectNotFound
		}
		if accountTaken(subjects, in.AccountNumber, id) {
			return ErrDuplicateAccountNumber
		}
		in.apply(&subjects[i])
		if active != nil {
			subjects[i].Active = *active
		}
		subj = subjects[i]
		b.SetSubjects(subjects)
		return nil
	})
	if err != nil {
		return model.Subject{}, err
	}
	return subj, nil
}

// SetActive activates or deactivates a subject. Records are left untouched.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (subj model.Subject, err error) {
	op := "deactivate_subject"
	if active {
		op = "activate_subject"
	}
	defer func() { s.finish(ctx, op, err, EventSubjectChanged, id, "") }()

	id = strings.TrimSpace(id)
	err = s.repo.Update(ctx, func(b *Batch) error {
		subjects, err := b.Subjects()
		if err != nil {
			return err
		}
		i := indexSubject(subjects, id)
		if i < 0 {
			return ErrSubjectNotFound
		}
		subjects[i].Active = active
		subj = subjects[i]
		b.SetSubjects(subjects)
		return nil
	})
	if err != nil {
		return model.Subject{}, err
	}
	return subj, nil
}

// GetSubject returns a subject or ErrSubjectNotFound.
func (s *Service) GetSubject(ctx context.Context, id string) (model.Subject, error) {
	subj, err := s.repo.GetSubject(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Subject{}, err
	}
	if subj == nil {
		return model.Subject{}, ErrSubjectNotFound
	}
	return *subj, nil
}

// ListSubjects returns every subject, active or not.
func (s *Service) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	return s.repo.ListSubjects(ctx)
}
