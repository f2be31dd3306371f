package school_test

import (
	"context"
	"testing"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db/dbtest"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
)

func TestClassesAndMembership(t *testing.T) {
	ctx := context.Background()
	h := dbtest.Open(t)
	dbtest.AddSchool(t, h, "s1", "North")
	dbtest.AddSchool(t, h, "s2", "South")
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "t1", Role: "teacher", SchoolID: "s1", LastName: "Khan"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "t2", Role: "teacher", SchoolID: "s2"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st1", Role: "student", SchoolID: "s1", ClassName: "7A", LastName: "Bell"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st2", Role: "student", SchoolID: "s1", ClassName: "7A", LastName: "Adams"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st3", Role: "student", SchoolID: "s1", ClassName: "7B"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st4", Role: "student", SchoolID: "s2", ClassName: "7A"})

	svc := school.NewService(school.NewSQLStore(h))
	sa := session.Session{UserID: "u-sa", ProfileID: "sa", Role: session.RoleSchoolAdmin, SchoolID: "s1"}

	c, err := svc.CreateClass(ctx, sa, school.NewClass{Name: "7A", Grade: 7, AcademicYear: "2025-2026", TeacherID: "t1"})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	if c.SchoolID != "s1" {
		t.Fatalf("school defaulted wrong: %q", c.SchoolID)
	}

	if _, err := svc.CreateClass(ctx, sa, school.NewClass{Name: "7B", AcademicYear: "2025-2026", TeacherID: "t2"}); apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("teacher from another school: %v", err)
	}
	if _, err := svc.CreateClass(ctx, sa, school.NewClass{Name: "7B", AcademicYear: "2025-2026", TeacherID: "t2", SchoolID: "s2"}); apierr.KindOf(err) != apierr.KindForbidden {
		t.Fatalf("cross-school class: %v", err)
	}

	students, err := svc.Store.StudentsInClass(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(students) != 2 || students[0].ID != "st2" || students[1].ID != "st1" {
		t.Fatalf("unexpected members: %+v", students)
	}

	teacher := session.Session{ProfileID: "t1", Role: session.RoleTeacher, SchoolID: "s1"}
	mine, err := svc.ListClasses(ctx, teacher)
	if err != nil || len(mine) != 1 {
		t.Fatalf("teacher classes: %v %+v", err, mine)
	}
	other := session.Session{ProfileID: "t2", Role: session.RoleTeacher, SchoolID: "s2"}
	if _, err := svc.GetClass(ctx, other, c.ID); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("class leaked across schools: %v", err)
	}

	users, err := svc.ListUsers(ctx, teacher, school.ProfileFilter{Role: session.RoleTeacher})
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		if u.Role != session.RoleStudent || u.SchoolID != "s1" {
			t.Fatalf("teacher saw %+v", u)
		}
	}
	if len(users) != 3 {
		t.Fatalf("want 3 students, got %d", len(users))
	}
}

func TestSchoolsAdminOnly(t *testing.T) {
	ctx := context.Background()
	h := dbtest.Open(t)
	svc := school.NewService(school.NewSQLStore(h))

	admin := session.Session{Role: session.RoleAdmin}
	sc, err := svc.CreateSchool(ctx, admin, school.NewSchool{Name: " West "})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "West" {
		t.Fatalf("name not trimmed: %q", sc.Name)
	}
	sa := session.Session{Role: session.RoleSchoolAdmin, SchoolID: sc.ID}
	if _, err := svc.CreateSchool(ctx, sa, school.NewSchool{Name: "East"}); apierr.KindOf(err) != apierr.KindForbidden {
		t.Fatalf("school admin created school: %v", err)
	}
	list, err := svc.ListSchools(ctx, sa)
	if err != nil || len(list) != 1 || list[0].ID != sc.ID {
		t.Fatalf("scoped list: %v %+v", err, list)
	}
	if err := svc.DeleteSchool(ctx, admin, sc.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSchool(ctx, admin, sc.ID); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("second delete: %v", err)
	}
}
